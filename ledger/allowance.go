package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

var unlimitedAllowance = new(uint256.Int).SetAllOne()

// UnlimitedAllowance returns the sentinel that marks a never-consumed
// spending grant: the maximum representable value.
func UnlimitedAllowance() *uint256.Int {
	return new(uint256.Int).Set(unlimitedAllowance)
}

// Approve sets the caller's allowance for spender to exactly value,
// replacing any previous grant. Approvals work while paused.
func (t *Token) Approve(caller, spender address.Address, value *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx := beginTxn(t.st)
	if err := approve(tx, caller, spender, cloneAmount(value)); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// IncreaseAllowance raises the caller's grant to spender by delta. An
// unlimited grant stays unlimited.
func (t *Token) IncreaseAllowance(caller, spender address.Address, delta *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx := beginTxn(t.st)
	al := tx.allowance(caller, spender)
	if !al.Eq(unlimitedAllowance) {
		if _, overflow := al.AddOverflow(al, cloneAmount(delta)); overflow {
			return fmt.Errorf("%w: allowance increase for %s", ErrAmountOverflow, spender)
		}
	}
	if err := approve(tx, caller, spender, al); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// DecreaseAllowance lowers the caller's grant to spender by delta.
// Lowering below zero is rejected; lowering an unlimited grant makes it
// finite.
func (t *Token) DecreaseAllowance(caller, spender address.Address, delta *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx := beginTxn(t.st)
	al := tx.allowance(caller, spender)
	d := cloneAmount(delta)
	if al.Lt(d) {
		return fmt.Errorf("%w: grant to %s is %s, cannot decrease by %s", ErrInsufficientAllowance, spender, al, d)
	}
	if err := approve(tx, caller, spender, al.Sub(al, d)); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}

// approve stages an allowance write and its record.
func approve(tx *txn, owner, spender address.Address, value *uint256.Int) error {
	if owner.IsNull() {
		return fmt.Errorf("%w: null owner", ErrInvalidAddress)
	}
	if spender.IsNull() {
		return fmt.Errorf("%w: null spender", ErrInvalidAddress)
	}
	tx.setAllowance(owner, spender, value)
	tx.emit(Event{Kind: EventApproval, From: owner, To: spender, Value: new(uint256.Int).Set(value)})
	return nil
}

// consumeAllowance deducts value from owner's grant to spender. The
// unlimited sentinel is never written down.
func consumeAllowance(tx *txn, owner, spender address.Address, value *uint256.Int) error {
	al := tx.allowance(owner, spender)
	if al.Eq(unlimitedAllowance) {
		return nil
	}
	if al.Lt(value) {
		return fmt.Errorf("%w: %s grants %s only %s, needs %s", ErrInsufficientAllowance, owner, spender, al, value)
	}
	tx.setAllowance(owner, spender, al.Sub(al, value))
	return nil
}
