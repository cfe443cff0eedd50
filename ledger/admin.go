package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

func (t *Token) requireOwner(caller address.Address) error {
	if !caller.Compare(t.st.owner) {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}
	return nil
}

// SetTaxPercent adjusts the fee deduction rate. Owner-only, fee variant
// only, capped at MaxTaxPercent.
func (t *Token) SetTaxPercent(caller address.Address, percent uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if t.policy.variant() != VariantFee {
		return fmt.Errorf("%w: the %s variant deduction is fixed", ErrConfigOutOfBounds, t.policy.variant())
	}
	if percent > MaxTaxPercent {
		return fmt.Errorf("%w: tax percent %d exceeds %d", ErrConfigOutOfBounds, percent, MaxTaxPercent)
	}
	tx := beginTxn(t.st)
	tx.setTaxPercent(percent)
	tx.emit(Event{Kind: EventTaxPercentChanged, From: caller, Value: uint256.NewInt(percent)})
	t.finish(tx)
	return nil
}

// SetTaxReceiver redirects the fee deduction. Owner-only, fee variant
// only, never the null account.
func (t *Token) SetTaxReceiver(caller, receiver address.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if t.policy.variant() != VariantFee {
		return fmt.Errorf("%w: the %s variant has no fee receiver", ErrConfigOutOfBounds, t.policy.variant())
	}
	if receiver.IsNull() {
		return fmt.Errorf("%w: null tax receiver", ErrInvalidAddress)
	}
	tx := beginTxn(t.st)
	tx.setTaxReceiver(receiver)
	tx.emit(Event{Kind: EventTaxReceiverChanged, From: caller, To: receiver})
	t.finish(tx)
	return nil
}

// Pause halts Transfer and TransferFrom. Approvals, permits, supply and
// admin operations keep working. Pausing twice is a no-op.
func (t *Token) Pause(caller address.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	tx := beginTxn(t.st)
	tx.setPaused(true)
	t.finish(tx)
	return nil
}

func (t *Token) Unpause(caller address.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	tx := beginTxn(t.st)
	tx.setPaused(false)
	t.finish(tx)
	return nil
}

// TransferOwnership hands the privileged role to newOwner. The fee
// exemption and every owner-only gate follow immediately.
func (t *Token) TransferOwnership(caller, newOwner address.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if newOwner.IsNull() {
		return fmt.Errorf("%w: null owner", ErrInvalidAddress)
	}
	tx := beginTxn(t.st)
	tx.setOwner(newOwner)
	tx.emit(Event{Kind: EventOwnershipTransferred, From: caller, To: newOwner})
	t.finish(tx)
	return nil
}
