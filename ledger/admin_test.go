package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/cinder-labs/cinder/crypto/address"
)

func TestSetTaxPercentBounds(t *testing.T) {
	tok := newFeeToken(t, nil)

	err := tok.SetTaxPercent(ownerAddr, 11)
	require.ErrorIs(t, err, ErrConfigOutOfBounds)
	require.Equal(t, uint64(1), tok.TaxPercent())

	require.NoError(t, tok.SetTaxPercent(ownerAddr, 10))
	require.Equal(t, uint64(10), tok.TaxPercent())

	require.NoError(t, tok.SetTaxPercent(ownerAddr, 0))
	require.Equal(t, uint64(0), tok.TaxPercent())
}

func TestSetTaxPercentTakesEffect(t *testing.T) {
	tok := newFeeToken(t, nil)
	mustMint(t, tok, aliceAddr, 10_000)

	require.NoError(t, tok.SetTaxPercent(ownerAddr, 10))
	require.NoError(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(900), balance(tok, bobAddr))
	require.Equal(t, uint64(100), balance(tok, treasuryAddr))
}

func TestAdminRequiresOwner(t *testing.T) {
	tok := newFeeToken(t, nil)

	require.ErrorIs(t, tok.SetTaxPercent(aliceAddr, 5), ErrUnauthorized)
	require.ErrorIs(t, tok.SetTaxReceiver(aliceAddr, bobAddr), ErrUnauthorized)
	require.ErrorIs(t, tok.Pause(aliceAddr), ErrUnauthorized)
	require.ErrorIs(t, tok.Unpause(aliceAddr), ErrUnauthorized)
	require.ErrorIs(t, tok.TransferOwnership(aliceAddr, bobAddr), ErrUnauthorized)
}

func TestSetTaxReceiver(t *testing.T) {
	sink := &captureSink{}
	tok := newFeeToken(t, sink)
	mustMint(t, tok, aliceAddr, 10_000)

	require.ErrorIs(t, tok.SetTaxReceiver(ownerAddr, address.Null()), ErrInvalidAddress)

	require.NoError(t, tok.SetTaxReceiver(ownerAddr, carolAddr))
	require.Equal(t, carolAddr, tok.TaxReceiver())

	changes := sink.ofKind(EventTaxReceiverChanged)
	require.Len(t, changes, 1)
	require.Equal(t, carolAddr, changes[0].To)

	require.NoError(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(10), balance(tok, carolAddr))
	require.Equal(t, uint64(0), balance(tok, treasuryAddr))
}

func TestBurnVariantHasNoFeeConfig(t *testing.T) {
	tok := newBurnToken(t, nil)

	require.ErrorIs(t, tok.SetTaxPercent(ownerAddr, 5), ErrConfigOutOfBounds)
	require.ErrorIs(t, tok.SetTaxReceiver(ownerAddr, carolAddr), ErrConfigOutOfBounds)
	require.Equal(t, uint64(1), tok.TaxPercent())
}

func TestPauseBlocksTransfersOnly(t *testing.T) {
	tok := newFeeToken(t, nil)
	mustMint(t, tok, aliceAddr, 10_000)
	require.NoError(t, tok.Approve(aliceAddr, bobAddr, uint256.NewInt(2_000)))

	require.NoError(t, tok.Pause(ownerAddr))
	require.True(t, tok.Paused())

	require.ErrorIs(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(100)), ErrPaused)
	require.ErrorIs(t, tok.TransferFrom(bobAddr, aliceAddr, carolAddr, uint256.NewInt(100)), ErrPaused)

	// Everything that is not a transfer keeps working.
	require.NoError(t, tok.Approve(aliceAddr, carolAddr, uint256.NewInt(5)))
	require.NoError(t, tok.Mint(ownerAddr, aliceAddr, uint256.NewInt(5)))
	require.NoError(t, tok.Burn(aliceAddr, uint256.NewInt(5)))
	require.NoError(t, tok.SetTaxPercent(ownerAddr, 2))

	require.NoError(t, tok.Unpause(ownerAddr))
	require.False(t, tok.Paused())
	require.NoError(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(100)))
}

func TestPauseIsIdempotent(t *testing.T) {
	tok := newFeeToken(t, nil)
	require.NoError(t, tok.Pause(ownerAddr))
	require.NoError(t, tok.Pause(ownerAddr))
	require.True(t, tok.Paused())
	require.NoError(t, tok.Unpause(ownerAddr))
	require.NoError(t, tok.Unpause(ownerAddr))
	require.False(t, tok.Paused())
}

func TestTransferOwnership(t *testing.T) {
	sink := &captureSink{}
	tok := newFeeToken(t, sink)

	require.ErrorIs(t, tok.TransferOwnership(ownerAddr, address.Null()), ErrInvalidAddress)

	require.NoError(t, tok.TransferOwnership(ownerAddr, carolAddr))
	require.Equal(t, carolAddr, tok.Owner())

	handovers := sink.ofKind(EventOwnershipTransferred)
	require.Len(t, handovers, 1)
	require.Equal(t, ownerAddr, handovers[0].From)
	require.Equal(t, carolAddr, handovers[0].To)

	// Gates follow the new owner immediately.
	require.ErrorIs(t, tok.Pause(ownerAddr), ErrUnauthorized)
	require.NoError(t, tok.Pause(carolAddr))
	require.ErrorIs(t, tok.Mint(ownerAddr, aliceAddr, uint256.NewInt(1)), ErrUnauthorized)
	require.NoError(t, tok.Mint(carolAddr, aliceAddr, uint256.NewInt(1)))
}
