package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

// Variant selects the deduction policy applied to transfers.
type Variant string

const (
	// VariantBurn destroys a fixed share of every transfer.
	VariantBurn Variant = "burn"
	// VariantFee routes a configurable share to the tax receiver and
	// exempts transfers the privileged account takes part in.
	VariantFee Variant = "fee"
)

const (
	burnPercent   = 1
	MaxTaxPercent = 10
)

// deductionPolicy settles the deducted share of a transfer and returns
// the net amount due to the recipient. Implementations stage their
// mutations on the txn so a later failure unwinds them.
type deductionPolicy interface {
	variant() Variant
	percent(s *state) uint64
	deduct(tx *txn, from, to address.Address, gross *uint256.Int) (*uint256.Int, error)
}

func newPolicy(v Variant) (deductionPolicy, error) {
	switch v {
	case VariantBurn:
		return burnPolicy{}, nil
	case VariantFee:
		return feePolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy variant %q", ErrConfigOutOfBounds, v)
	}
}

// splitGross computes floor(gross*pct/100) and the exact remainder.
// net + deducted == gross always holds; deducted < gross whenever gross
// is positive and pct is below 100.
func splitGross(gross *uint256.Int, pct uint64) (net, deducted *uint256.Int, err error) {
	deducted = new(uint256.Int)
	if _, overflow := deducted.MulOverflow(gross, uint256.NewInt(pct)); overflow {
		return nil, nil, fmt.Errorf("%w: %s at %d%%", ErrAmountOverflow, gross, pct)
	}
	deducted.Div(deducted, uint256.NewInt(100))
	net = new(uint256.Int).Sub(gross, deducted)
	return net, deducted, nil
}

type burnPolicy struct{}

func (burnPolicy) variant() Variant      { return VariantBurn }
func (burnPolicy) percent(*state) uint64 { return burnPercent }

func (burnPolicy) deduct(tx *txn, from, to address.Address, gross *uint256.Int) (*uint256.Int, error) {
	net, deducted, err := splitGross(gross, burnPercent)
	if err != nil {
		return nil, err
	}
	if !deducted.IsZero() {
		supply := tx.supply()
		supply.Sub(supply, deducted)
		tx.setSupply(supply)
		tx.emit(Event{Kind: EventTokensBurned, From: from, To: address.Null(), Value: deducted})
	}
	return net, nil
}

type feePolicy struct{}

func (feePolicy) variant() Variant        { return VariantFee }
func (feePolicy) percent(s *state) uint64 { return s.taxPercent }

func (feePolicy) deduct(tx *txn, from, to address.Address, gross *uint256.Int) (*uint256.Int, error) {
	owner := tx.currentOwner()
	if from.Compare(owner) || to.Compare(owner) {
		return new(uint256.Int).Set(gross), nil
	}
	net, deducted, err := splitGross(gross, tx.currentTaxPercent())
	if err != nil {
		return nil, err
	}
	if !deducted.IsZero() {
		receiver := tx.currentTaxReceiver()
		rbal := tx.balance(receiver)
		if _, overflow := rbal.AddOverflow(rbal, deducted); overflow {
			return nil, fmt.Errorf("%w: fee credit to %s", ErrAmountOverflow, receiver)
		}
		tx.setBalance(receiver, rbal)
		tx.emit(Event{Kind: EventFeeCollected, From: from, To: receiver, Value: deducted})
	}
	return net, nil
}
