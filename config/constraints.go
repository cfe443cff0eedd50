package config

const (
	// Token Related
	DefaultTokenName   = "Cinder"
	DefaultTokenSymbol = "CNDR"
	InitialTotalSupply = 120_000_000 // 120 million CNDR, in whole tokens

	// Deduction Related
	DefaultVariant    = "burn"
	DefaultTaxPercent = 1 // percent, fee variant only

	// Network Related
	DefaultChainID    = 1337
	DefaultListenAddr = ":8545"
	DefaultDataDir    = "./data"

	// Admin Related
	MinAdminSecretLen = 32 // bytes of HMAC key material
)
