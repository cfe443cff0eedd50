package amount

import (
	"errors"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the precision of the token: one CNDR is 1e18 base units.
const Decimals = 18

type Unit int

const (
	MegaCNDR  Unit = 6
	KiloCNDR  Unit = 3
	CNDR      Unit = 0
	MilliCNDR Unit = -3
	MicroCNDR Unit = -6
	// Ash is the atomic unit. Every ledger quantity is a count of ash.
	Ash Unit = -Decimals
)

func (u Unit) String() string {
	switch u {
	case MegaCNDR:
		return "MCNDR"
	case KiloCNDR:
		return "kCNDR"
	case CNDR:
		return "CNDR"
	case MilliCNDR:
		return "mCNDR"
	case MicroCNDR:
		return "μCNDR"
	case Ash:
		return "ash"
	default:
		return "1e" + strconv.FormatInt(int64(u), 10) + " CNDR"
	}
}

var (
	ErrInvalidAmount = errors.New("invalid CNDR amount")
	// ErrPrecision flags a value with digits below one ash.
	ErrPrecision = errors.New("amount is finer than one ash")
)

// Parse converts a decimal CNDR string to base units.
func Parse(str string) (*uint256.Int, error) {
	return ParseUnit(str, CNDR)
}

// ParseUnit converts a decimal string denominated in u to base units.
// The conversion is exact; values finer than one ash are rejected.
func ParseUnit(str string, u Unit) (*uint256.Int, error) {
	d, err := decimal.NewFromString(str)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.IsNegative() {
		return nil, ErrInvalidAmount
	}
	shifted := d.Shift(int32(u) + Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, ErrPrecision
	}
	v, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// Format renders base units as an exact decimal string in u, with suffix.
func Format(v *uint256.Int, u Unit) string {
	d := decimal.NewFromBigInt(v.ToBig(), 0).Shift(-(int32(u) + Decimals))
	return d.String() + " " + u.String()
}

// String is the equivalent of calling Format with CNDR.
func String(v *uint256.Int) string {
	return Format(v, CNDR)
}
