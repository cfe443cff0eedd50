package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

type allowanceKey struct {
	owner   address.Address
	spender address.Address
}

// state is the committed data model. Absent map entries mean zero; commit
// prunes entries that reach zero so the two representations never diverge.
type state struct {
	totalSupply *uint256.Int
	balances    map[address.Address]*uint256.Int
	allowances  map[allowanceKey]*uint256.Int
	nonces      map[address.Address]uint64

	owner       address.Address
	taxPercent  uint64
	taxReceiver address.Address
	paused      bool
}

func newState() *state {
	return &state{
		totalSupply: new(uint256.Int),
		balances:    make(map[address.Address]*uint256.Int),
		allowances:  make(map[allowanceKey]*uint256.Int),
		nonces:      make(map[address.Address]uint64),
	}
}

// checkConservation verifies that balances sum exactly to the recorded
// total supply. It runs after every commit when strict mode is on.
func (s *state) checkConservation() error {
	sum := new(uint256.Int)
	for account, bal := range s.balances {
		if _, overflow := sum.AddOverflow(sum, bal); overflow {
			return fmt.Errorf("%w: balance sum exceeds 256 bits at %s", ErrAmountOverflow, account)
		}
	}
	if !sum.Eq(s.totalSupply) {
		return fmt.Errorf("balances sum to %s but total supply is %s", sum, s.totalSupply)
	}
	return nil
}

// Snapshot is the serializable form of the full data model. Entries are
// sorted so equal states produce equal bytes.
type Snapshot struct {
	TotalSupply *uint256.Int     `cbor:"1,keyasint" json:"totalSupply"`
	Balances    []BalanceEntry   `cbor:"2,keyasint" json:"balances"`
	Allowances  []AllowanceEntry `cbor:"3,keyasint" json:"allowances"`
	Nonces      []NonceEntry     `cbor:"4,keyasint" json:"nonces"`
	Owner       address.Address  `cbor:"5,keyasint" json:"owner"`
	TaxPercent  uint64           `cbor:"6,keyasint" json:"taxPercent"`
	TaxReceiver address.Address  `cbor:"7,keyasint" json:"taxReceiver"`
	Paused      bool             `cbor:"8,keyasint" json:"paused"`
}

type BalanceEntry struct {
	Account address.Address `cbor:"1,keyasint" json:"account"`
	Value   *uint256.Int    `cbor:"2,keyasint" json:"value"`
}

type AllowanceEntry struct {
	Owner   address.Address `cbor:"1,keyasint" json:"owner"`
	Spender address.Address `cbor:"2,keyasint" json:"spender"`
	Value   *uint256.Int    `cbor:"3,keyasint" json:"value"`
}

type NonceEntry struct {
	Account address.Address `cbor:"1,keyasint" json:"account"`
	Nonce   uint64          `cbor:"2,keyasint" json:"nonce"`
}

func (s *state) snapshot() *Snapshot {
	snap := &Snapshot{
		TotalSupply: new(uint256.Int).Set(s.totalSupply),
		Owner:       s.owner,
		TaxPercent:  s.taxPercent,
		TaxReceiver: s.taxReceiver,
		Paused:      s.paused,
	}
	for account, bal := range s.balances {
		snap.Balances = append(snap.Balances, BalanceEntry{Account: account, Value: new(uint256.Int).Set(bal)})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return bytes.Compare(snap.Balances[i].Account[:], snap.Balances[j].Account[:]) < 0
	})
	for key, al := range s.allowances {
		snap.Allowances = append(snap.Allowances, AllowanceEntry{Owner: key.owner, Spender: key.spender, Value: new(uint256.Int).Set(al)})
	}
	sort.Slice(snap.Allowances, func(i, j int) bool {
		a, b := snap.Allowances[i], snap.Allowances[j]
		if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Spender[:], b.Spender[:]) < 0
	})
	for account, nonce := range s.nonces {
		snap.Nonces = append(snap.Nonces, NonceEntry{Account: account, Nonce: nonce})
	}
	sort.Slice(snap.Nonces, func(i, j int) bool {
		return bytes.Compare(snap.Nonces[i].Account[:], snap.Nonces[j].Account[:]) < 0
	})
	return snap
}

func stateFromSnapshot(snap *Snapshot) (*state, error) {
	s := newState()
	if snap.TotalSupply != nil {
		s.totalSupply.Set(snap.TotalSupply)
	}
	for _, e := range snap.Balances {
		if e.Value == nil || e.Value.IsZero() {
			continue
		}
		s.balances[e.Account] = new(uint256.Int).Set(e.Value)
	}
	for _, e := range snap.Allowances {
		if e.Value == nil || e.Value.IsZero() {
			continue
		}
		s.allowances[allowanceKey{owner: e.Owner, spender: e.Spender}] = new(uint256.Int).Set(e.Value)
	}
	for _, e := range snap.Nonces {
		if e.Nonce == 0 {
			continue
		}
		s.nonces[e.Account] = e.Nonce
	}
	s.owner = snap.Owner
	s.taxPercent = snap.TaxPercent
	s.taxReceiver = snap.TaxReceiver
	s.paused = snap.Paused
	if err := s.checkConservation(); err != nil {
		return nil, fmt.Errorf("snapshot is inconsistent: %w", err)
	}
	return s, nil
}
