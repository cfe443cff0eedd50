package ledger

import (
	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

// txn stages one operation against the committed state. Reads fall
// through to state, writes land in the overlay, events buffer until
// commit. Dropping the txn without commit leaves the ledger untouched.
type txn struct {
	st *state

	balances   map[address.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	nonces     map[address.Address]uint64

	totalSupply *uint256.Int
	owner       *address.Address
	taxPercent  *uint64
	taxReceiver *address.Address
	paused      *bool

	events []Event
}

func beginTxn(st *state) *txn {
	return &txn{
		st:         st,
		balances:   make(map[address.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		nonces:     make(map[address.Address]uint64),
	}
}

// balance returns a copy; staged values are installed with setBalance only.
func (tx *txn) balance(account address.Address) *uint256.Int {
	if v, ok := tx.balances[account]; ok {
		return new(uint256.Int).Set(v)
	}
	if v, ok := tx.st.balances[account]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (tx *txn) setBalance(account address.Address, v *uint256.Int) {
	tx.balances[account] = v
}

func (tx *txn) allowance(owner, spender address.Address) *uint256.Int {
	key := allowanceKey{owner: owner, spender: spender}
	if v, ok := tx.allowances[key]; ok {
		return new(uint256.Int).Set(v)
	}
	if v, ok := tx.st.allowances[key]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (tx *txn) setAllowance(owner, spender address.Address, v *uint256.Int) {
	tx.allowances[allowanceKey{owner: owner, spender: spender}] = v
}

func (tx *txn) nonce(account address.Address) uint64 {
	if n, ok := tx.nonces[account]; ok {
		return n
	}
	return tx.st.nonces[account]
}

func (tx *txn) setNonce(account address.Address, n uint64) {
	tx.nonces[account] = n
}

func (tx *txn) supply() *uint256.Int {
	if tx.totalSupply != nil {
		return new(uint256.Int).Set(tx.totalSupply)
	}
	return new(uint256.Int).Set(tx.st.totalSupply)
}

func (tx *txn) setSupply(v *uint256.Int) {
	tx.totalSupply = v
}

func (tx *txn) currentOwner() address.Address {
	if tx.owner != nil {
		return *tx.owner
	}
	return tx.st.owner
}

func (tx *txn) setOwner(a address.Address) {
	tx.owner = &a
}

func (tx *txn) currentTaxPercent() uint64 {
	if tx.taxPercent != nil {
		return *tx.taxPercent
	}
	return tx.st.taxPercent
}

func (tx *txn) setTaxPercent(p uint64) {
	tx.taxPercent = &p
}

func (tx *txn) currentTaxReceiver() address.Address {
	if tx.taxReceiver != nil {
		return *tx.taxReceiver
	}
	return tx.st.taxReceiver
}

func (tx *txn) setTaxReceiver(a address.Address) {
	tx.taxReceiver = &a
}

func (tx *txn) setPaused(p bool) {
	tx.paused = &p
}

func (tx *txn) emit(e Event) {
	tx.events = append(tx.events, e)
}

// commit publishes the overlay into the committed state. Zero-value
// balance and allowance entries are pruned rather than stored.
func (tx *txn) commit() []Event {
	for account, v := range tx.balances {
		if v.IsZero() {
			delete(tx.st.balances, account)
		} else {
			tx.st.balances[account] = v
		}
	}
	for key, v := range tx.allowances {
		if v.IsZero() {
			delete(tx.st.allowances, key)
		} else {
			tx.st.allowances[key] = v
		}
	}
	for account, n := range tx.nonces {
		tx.st.nonces[account] = n
	}
	if tx.totalSupply != nil {
		tx.st.totalSupply = tx.totalSupply
	}
	if tx.owner != nil {
		tx.st.owner = *tx.owner
	}
	if tx.taxPercent != nil {
		tx.st.taxPercent = *tx.taxPercent
	}
	if tx.taxReceiver != nil {
		tx.st.taxReceiver = *tx.taxReceiver
	}
	if tx.paused != nil {
		tx.st.paused = *tx.paused
	}
	return tx.events
}
