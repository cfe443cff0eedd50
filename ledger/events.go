package ledger

import (
	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
)

type EventKind string

const (
	// EventTransfer records value moving between accounts. Mint records
	// carry the null account as From, burn records as To, and Value is
	// the amount credited to the recipient (net of any deduction).
	EventTransfer EventKind = "transfer"
	// EventApproval records an allowance being set to Value.
	EventApproval EventKind = "approval"
	// EventFeeCollected records the deducted share routed to the fee
	// receiver. From is the sender that paid it, To the receiver.
	EventFeeCollected EventKind = "fee_collected"
	// EventTokensBurned records supply destroyed, either by the burn
	// deduction or an explicit burn. From is the account that paid.
	EventTokensBurned EventKind = "tokens_burned"

	EventTaxReceiverChanged   EventKind = "tax_receiver_changed"
	EventTaxPercentChanged    EventKind = "tax_percent_changed"
	EventOwnershipTransferred EventKind = "ownership_transferred"
)

// Event is one committed state-change record. Field meaning depends on
// Kind; unused fields hold their zero value.
type Event struct {
	Kind  EventKind       `cbor:"1,keyasint" json:"kind"`
	From  address.Address `cbor:"2,keyasint" json:"from"`
	To    address.Address `cbor:"3,keyasint" json:"to"`
	Value *uint256.Int    `cbor:"4,keyasint" json:"value"`
}

// EventSink receives the records of one committed operation, in emission
// order, while the ledger lock is still held.
type EventSink interface {
	Append(events []Event)
}
