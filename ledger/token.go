// Package ledger implements a fungible-token ledger: account balances,
// delegated spending rights, signed off-ledger approvals and a
// per-transfer deduction policy, all mutated through single-operation
// staged commits.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto"
	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/crypto/hash"
	"github.com/cinder-labs/cinder/eip712"
)

const (
	// Decimals is the display precision. Every stored quantity is a
	// count of base units.
	Decimals uint8 = 18
	// Version is the structured-data version bound into permit digests.
	Version = "1"
)

type Config struct {
	Name   string
	Symbol string
	// ChainID and LedgerAddress identify this deployment; both are
	// mixed into the permit domain separator.
	ChainID       uint64
	LedgerAddress address.Address

	Owner         address.Address
	InitialSupply *uint256.Int

	Variant Variant
	// TaxPercent and TaxReceiver apply to the fee variant only.
	TaxPercent  uint64
	TaxReceiver address.Address

	// Recoverer resolves permit signers. Defaults to secp256k1.
	Recoverer crypto.Recoverer
	// Now supplies the clock for deadline checks. Defaults to time.Now.
	Now func() time.Time
	// Events receives committed records. Nil discards them.
	Events EventSink
	// Strict re-verifies supply conservation after every commit.
	Strict bool
}

func (c Config) validate() error {
	if c.Name == "" || c.Symbol == "" {
		return fmt.Errorf("%w: name and symbol are required", ErrConfigOutOfBounds)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("%w: chain id must be non-zero", ErrConfigOutOfBounds)
	}
	if c.LedgerAddress.IsNull() {
		return fmt.Errorf("%w: null ledger address", ErrInvalidAddress)
	}
	if c.Owner.IsNull() {
		return fmt.Errorf("%w: null owner", ErrInvalidAddress)
	}
	switch c.Variant {
	case VariantBurn:
	case VariantFee:
		if c.TaxPercent > MaxTaxPercent {
			return fmt.Errorf("%w: tax percent %d exceeds %d", ErrConfigOutOfBounds, c.TaxPercent, MaxTaxPercent)
		}
		if c.TaxReceiver.IsNull() {
			return fmt.Errorf("%w: null tax receiver", ErrInvalidAddress)
		}
	default:
		return fmt.Errorf("%w: unknown policy variant %q", ErrConfigOutOfBounds, c.Variant)
	}
	return nil
}

// Token is the ledger facade. Every operation takes the lock for its
// whole read-validate-commit span, so operations serialize and observe
// each other fully applied or not at all.
type Token struct {
	mu sync.RWMutex

	name       string
	symbol     string
	chainID    uint64
	ledgerAddr address.Address
	domain     hash.Hash

	policy  deductionPolicy
	st      *state
	recover crypto.Recoverer
	now     func() time.Time
	events  EventSink
	strict  bool
}

func New(cfg Config) (*Token, error) {
	t, err := build(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.InitialSupply != nil && !cfg.InitialSupply.IsZero() {
		supply := new(uint256.Int).Set(cfg.InitialSupply)
		tx := beginTxn(t.st)
		tx.setSupply(supply)
		tx.setBalance(cfg.Owner, new(uint256.Int).Set(supply))
		tx.emit(Event{Kind: EventTransfer, From: address.Null(), To: cfg.Owner, Value: new(uint256.Int).Set(supply)})
		t.finish(tx)
	}
	return t, nil
}

// NewFromSnapshot restores a ledger from a previously taken snapshot.
// The snapshot supplies owner, deduction config and all account state;
// cfg.InitialSupply, cfg.Owner and the tax fields are ignored.
func NewFromSnapshot(cfg Config, snap *Snapshot) (*Token, error) {
	cfg.Owner = snap.Owner
	cfg.TaxPercent = snap.TaxPercent
	cfg.TaxReceiver = snap.TaxReceiver
	t, err := build(cfg)
	if err != nil {
		return nil, err
	}
	st, err := stateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	t.st = st
	return t, nil
}

func build(cfg Config) (*Token, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	policy, err := newPolicy(cfg.Variant)
	if err != nil {
		return nil, err
	}

	st := newState()
	st.owner = cfg.Owner
	st.taxReceiver = cfg.TaxReceiver
	if cfg.Variant == VariantFee {
		st.taxPercent = cfg.TaxPercent
	} else {
		st.taxPercent = burnPercent
	}

	t := &Token{
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		chainID:    cfg.ChainID,
		ledgerAddr: cfg.LedgerAddress,
		domain:     eip712.DomainSeparator(cfg.Name, Version, cfg.ChainID, cfg.LedgerAddress),
		policy:     policy,
		st:         st,
		recover:    cfg.Recoverer,
		now:        cfg.Now,
		events:     cfg.Events,
		strict:     cfg.Strict,
	}
	if t.recover == nil {
		t.recover = crypto.NewRecoverer()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// finish commits the overlay and hands the buffered records to the sink
// while the lock is still held, preserving commit order.
func (t *Token) finish(tx *txn) {
	events := tx.commit()
	if t.strict {
		if err := t.st.checkConservation(); err != nil {
			panic("ledger: conservation violated after commit: " + err.Error())
		}
	}
	if t.events != nil && len(events) > 0 {
		t.events.Append(events)
	}
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func (t *Token) Name() string     { return t.name }
func (t *Token) Symbol() string   { return t.symbol }
func (t *Token) Decimals() uint8  { return Decimals }
func (t *Token) ChainID() uint64  { return t.chainID }
func (t *Token) Variant() Variant { return t.policy.variant() }

func (t *Token) LedgerAddress() address.Address { return t.ledgerAddr }
func (t *Token) DomainSeparator() hash.Hash     { return t.domain }

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.st.totalSupply)
}

func (t *Token) BalanceOf(account address.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.st.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (t *Token) Allowance(owner, spender address.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if al, ok := t.st.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return new(uint256.Int).Set(al)
	}
	return new(uint256.Int)
}

func (t *Token) Nonces(owner address.Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st.nonces[owner]
}

func (t *Token) Owner() address.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st.owner
}

func (t *Token) TaxPercent() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.policy.percent(t.st)
}

func (t *Token) TaxReceiver() address.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st.taxReceiver
}

func (t *Token) Paused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st.paused
}

// Snapshot captures the full committed data model.
func (t *Token) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st.snapshot()
}

// CalculateTax returns the share the current policy would deduct from a
// transfer of value. Exemptions do not apply here; they need parties.
func (t *Token) CalculateTax(value *uint256.Int) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, deducted, err := splitGross(cloneAmount(value), t.policy.percent(t.st))
	if err != nil {
		return nil, err
	}
	return deducted, nil
}

// CalculateNetAmount returns what a recipient would be credited from a
// transfer of value under the current policy.
func (t *Token) CalculateNetAmount(value *uint256.Int) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	net, _, err := splitGross(cloneAmount(value), t.policy.percent(t.st))
	if err != nil {
		return nil, err
	}
	return net, nil
}

// Transfer moves value from the caller to recipient, minus the policy
// deduction. A zero value is a valid no-op that still emits its record.
func (t *Token) Transfer(caller, to address.Address, value *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.paused {
		return ErrPaused
	}
	if caller.IsNull() {
		return fmt.Errorf("%w: null sender", ErrInvalidAddress)
	}
	if to.IsNull() {
		return fmt.Errorf("%w: null recipient", ErrInvalidAddress)
	}
	tx := beginTxn(t.st)
	if err := t.move(tx, caller, to, cloneAmount(value)); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// TransferFrom moves value from the granting account using the caller's
// allowance. The allowance is consumed before the balance check, and
// both unwind together if any later step fails.
func (t *Token) TransferFrom(caller, from, to address.Address, value *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.paused {
		return ErrPaused
	}
	if caller.IsNull() {
		return fmt.Errorf("%w: null spender", ErrInvalidAddress)
	}
	if from.IsNull() {
		return fmt.Errorf("%w: null sender", ErrInvalidAddress)
	}
	if to.IsNull() {
		return fmt.Errorf("%w: null recipient", ErrInvalidAddress)
	}
	v := cloneAmount(value)
	tx := beginTxn(t.st)
	if err := consumeAllowance(tx, from, caller, v); err != nil {
		return err
	}
	if err := t.move(tx, from, to, v); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// move stages the debit-deduct-credit sequence for one transfer. The
// sender pays the gross amount; the recipient receives the net.
func (t *Token) move(tx *txn, from, to address.Address, gross *uint256.Int) error {
	bal := tx.balance(from)
	if bal.Lt(gross) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, bal, gross)
	}
	tx.setBalance(from, bal.Sub(bal, gross))

	net, err := t.policy.deduct(tx, from, to, gross)
	if err != nil {
		return err
	}

	rbal := tx.balance(to)
	if _, overflow := rbal.AddOverflow(rbal, net); overflow {
		return fmt.Errorf("%w: credit to %s", ErrAmountOverflow, to)
	}
	tx.setBalance(to, rbal)
	tx.emit(Event{Kind: EventTransfer, From: from, To: to, Value: net})
	return nil
}
