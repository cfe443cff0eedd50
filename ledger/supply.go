package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

// Mint creates value new base units in to's balance. Owner-only. Mint
// records carry the null account as their source.
func (t *Token) Mint(caller, to address.Address, value *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if to.IsNull() {
		return fmt.Errorf("%w: null recipient", ErrInvalidAddress)
	}
	v := cloneAmount(value)
	tx := beginTxn(t.st)

	supply := tx.supply()
	if _, overflow := supply.AddOverflow(supply, v); overflow {
		return fmt.Errorf("%w: minting %s", ErrAmountOverflow, v)
	}
	tx.setSupply(supply)

	bal := tx.balance(to)
	if _, overflow := bal.AddOverflow(bal, v); overflow {
		return fmt.Errorf("%w: credit to %s", ErrAmountOverflow, to)
	}
	tx.setBalance(to, bal)

	tx.emit(Event{Kind: EventTransfer, From: address.Null(), To: to, Value: v})
	t.finish(tx)
	return nil
}

// Burn destroys value base units from the caller's own balance.
func (t *Token) Burn(caller address.Address, value *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller.IsNull() {
		return fmt.Errorf("%w: null account", ErrInvalidAddress)
	}
	tx := beginTxn(t.st)
	if err := destroy(tx, caller, cloneAmount(value)); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// BurnFrom destroys value base units from owner's balance using the
// caller's allowance.
func (t *Token) BurnFrom(caller, owner address.Address, value *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller.IsNull() {
		return fmt.Errorf("%w: null spender", ErrInvalidAddress)
	}
	if owner.IsNull() {
		return fmt.Errorf("%w: null account", ErrInvalidAddress)
	}
	v := cloneAmount(value)
	tx := beginTxn(t.st)
	if err := consumeAllowance(tx, owner, caller, v); err != nil {
		return err
	}
	if err := destroy(tx, owner, v); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// destroy stages a balance debit and the matching supply reduction.
func destroy(tx *txn, from address.Address, value *uint256.Int) error {
	bal := tx.balance(from)
	if bal.Lt(value) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, bal, value)
	}
	tx.setBalance(from, bal.Sub(bal, value))

	supply := tx.supply()
	tx.setSupply(supply.Sub(supply, value))

	tx.emit(Event{Kind: EventTransfer, From: from, To: address.Null(), Value: new(uint256.Int).Set(value)})
	tx.emit(Event{Kind: EventTokensBurned, From: from, To: address.Null(), Value: new(uint256.Int).Set(value)})
	return nil
}
