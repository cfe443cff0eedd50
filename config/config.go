// Package config assembles the daemon configuration from defaults, an
// optional JSON file and environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/asaskevich/govalidator"

	"github.com/cinder-labs/cinder/amount"
	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/ledger"
)

// Config holds every tunable of the daemon. JSON field names double as
// the environment variable names, so a config file and a .env file
// describe the same settings.
type Config struct {
	TokenName     string          `json:"TOKEN_NAME"`
	TokenSymbol   string          `json:"TOKEN_SYMBOL"`
	ChainID       uint64          `json:"CHAIN_ID"`
	LedgerAddress address.Address `json:"LEDGER_ADDRESS"`

	// Genesis settings. Ignored when the data directory already holds
	// a snapshot; the restored state supplies them instead.
	OwnerAddress  address.Address `json:"OWNER_ADDRESS"`
	InitialSupply string          `json:"INITIAL_SUPPLY"`

	PolicyVariant string          `json:"POLICY_VARIANT"`
	TaxPercent    uint64          `json:"TAX_PERCENT"`
	TaxReceiver   address.Address `json:"TAX_RECEIVER"`

	StrictConservation bool `json:"STRICT_CONSERVATION"`

	ListenAddr     string `json:"LISTEN_ADDR"`
	DataDir        string `json:"DATA_DIR"`
	RetainedEvents int    `json:"RETAINED_EVENTS"`
	CertPath       string `json:"CERT_PATH"`
	KeyPath        string `json:"KEY_PATH"`

	// AdminSecret enables the operator RPC methods. Empty disables
	// them entirely.
	AdminSecret     string          `json:"ADMIN_SECRET"`
	OperatorAddress address.Address `json:"OPERATOR_ADDRESS"`
}

// Default returns a configuration with every optional field populated.
// Deployment identity (ledger address, owner) must still be provided.
func Default() *Config {
	return &Config{
		TokenName:     DefaultTokenName,
		TokenSymbol:   DefaultTokenSymbol,
		ChainID:       DefaultChainID,
		InitialSupply: strconv.Itoa(InitialTotalSupply),
		PolicyVariant: DefaultVariant,
		TaxPercent:    DefaultTaxPercent,
		ListenAddr:    DefaultListenAddr,
		DataDir:       DefaultDataDir,
	}
}

// LoadConfig reads a JSON configuration file. Fields absent from the
// file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	// Open the JSON file
	configFile, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	// Decode the JSON file into `Config`
	config := Default()
	if err := json.NewDecoder(configFile).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Load builds the effective configuration: defaults, then the JSON file
// at configPath when non-empty, then environment variables on top. The
// result is validated.
func Load(configPath string) (*Config, error) {
	config := Default()
	if configPath != "" {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if err := config.OverlayEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// OverlayEnv applies set environment variables over the current values.
func (c *Config) OverlayEnv() error {
	if v := os.Getenv("TOKEN_NAME"); v != "" {
		c.TokenName = v
	}
	if v := os.Getenv("TOKEN_SYMBOL"); v != "" {
		c.TokenSymbol = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %v", err)
		}
		c.ChainID = id
	}
	if v := os.Getenv("LEDGER_ADDRESS"); v != "" {
		addr, err := address.FromString(v)
		if err != nil {
			return fmt.Errorf("LEDGER_ADDRESS: %v", err)
		}
		c.LedgerAddress = addr
	}
	if v := os.Getenv("OWNER_ADDRESS"); v != "" {
		addr, err := address.FromString(v)
		if err != nil {
			return fmt.Errorf("OWNER_ADDRESS: %v", err)
		}
		c.OwnerAddress = addr
	}
	if v := os.Getenv("INITIAL_SUPPLY"); v != "" {
		c.InitialSupply = v
	}
	if v := os.Getenv("POLICY_VARIANT"); v != "" {
		c.PolicyVariant = v
	}
	if v := os.Getenv("TAX_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TAX_PERCENT: %v", err)
		}
		c.TaxPercent = pct
	}
	if v := os.Getenv("TAX_RECEIVER"); v != "" {
		addr, err := address.FromString(v)
		if err != nil {
			return fmt.Errorf("TAX_RECEIVER: %v", err)
		}
		c.TaxReceiver = addr
	}
	if v := os.Getenv("STRICT_CONSERVATION"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STRICT_CONSERVATION: %v", err)
		}
		c.StrictConservation = strict
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RETAINED_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RETAINED_EVENTS: %v", err)
		}
		c.RetainedEvents = n
	}
	if v := os.Getenv("CERT_PATH"); v != "" {
		c.CertPath = v
	}
	if v := os.Getenv("KEY_PATH"); v != "" {
		c.KeyPath = v
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		c.AdminSecret = v
	}
	if v := os.Getenv("OPERATOR_ADDRESS"); v != "" {
		addr, err := address.FromString(v)
		if err != nil {
			return fmt.Errorf("OPERATOR_ADDRESS: %v", err)
		}
		c.OperatorAddress = addr
	}
	return nil
}

// Validate checks the daemon-level settings. Ledger semantics (owner,
// supply bounds) are checked again when the ledger is constructed.
func (c *Config) Validate() error {
	if c.TokenName == "" || !govalidator.IsPrintableASCII(c.TokenName) {
		return fmt.Errorf("%w: TOKEN_NAME %q", ledger.ErrConfigOutOfBounds, c.TokenName)
	}
	if c.TokenSymbol == "" || !govalidator.IsPrintableASCII(c.TokenSymbol) {
		return fmt.Errorf("%w: TOKEN_SYMBOL %q", ledger.ErrConfigOutOfBounds, c.TokenSymbol)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("%w: CHAIN_ID must be non-zero", ledger.ErrConfigOutOfBounds)
	}
	if !govalidator.IsIn(c.PolicyVariant, string(ledger.VariantBurn), string(ledger.VariantFee)) {
		return fmt.Errorf("%w: POLICY_VARIANT %q", ledger.ErrConfigOutOfBounds, c.PolicyVariant)
	}
	if c.TaxPercent > ledger.MaxTaxPercent {
		return fmt.Errorf("%w: TAX_PERCENT %d exceeds %d", ledger.ErrConfigOutOfBounds, c.TaxPercent, ledger.MaxTaxPercent)
	}
	host, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil || !govalidator.IsPort(port) || (host != "" && !govalidator.IsHost(host)) {
		return fmt.Errorf("%w: LISTEN_ADDR %q", ledger.ErrConfigOutOfBounds, c.ListenAddr)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: DATA_DIR is required", ledger.ErrConfigOutOfBounds)
	}
	if c.RetainedEvents < 0 {
		return fmt.Errorf("%w: RETAINED_EVENTS %d is negative", ledger.ErrConfigOutOfBounds, c.RetainedEvents)
	}
	if (c.CertPath == "") != (c.KeyPath == "") {
		return fmt.Errorf("%w: CERT_PATH and KEY_PATH must be set together", ledger.ErrConfigOutOfBounds)
	}
	if c.AdminSecret != "" {
		if len(c.AdminSecret) < MinAdminSecretLen {
			return fmt.Errorf("%w: ADMIN_SECRET shorter than %d bytes", ledger.ErrConfigOutOfBounds, MinAdminSecretLen)
		}
		if c.OperatorAddress.IsNull() {
			return fmt.Errorf("%w: OPERATOR_ADDRESS is required with ADMIN_SECRET", ledger.ErrInvalidAddress)
		}
	}
	return nil
}

// LedgerConfig maps the daemon settings to a ledger configuration. The
// event sink, clock and recoverer are left for the caller to wire.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	cfg := ledger.Config{
		Name:          c.TokenName,
		Symbol:        c.TokenSymbol,
		ChainID:       c.ChainID,
		LedgerAddress: c.LedgerAddress,
		Owner:         c.OwnerAddress,
		Variant:       ledger.Variant(c.PolicyVariant),
		TaxPercent:    c.TaxPercent,
		TaxReceiver:   c.TaxReceiver,
		Strict:        c.StrictConservation,
	}
	if c.InitialSupply != "" {
		supply, err := amount.Parse(c.InitialSupply)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("INITIAL_SUPPLY %q: %w", c.InitialSupply, err)
		}
		cfg.InitialSupply = supply
	}
	return cfg, nil
}

// UseTLS reports whether the listener should terminate TLS itself.
func (c *Config) UseTLS() bool {
	return c.CertPath != "" && c.KeyPath != ""
}
