package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestDeflationaryTransfer(t *testing.T) {
	sink := &captureSink{}
	tok := newBurnToken(t, sink)
	mustMint(t, tok, aliceAddr, 10_000)
	supplyBefore := tok.TotalSupply().Uint64()

	require.NoError(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(1_000)))

	require.Equal(t, uint64(990), balance(tok, bobAddr))
	require.Equal(t, uint64(9_000), balance(tok, aliceAddr))
	require.Equal(t, supplyBefore-10, tok.TotalSupply().Uint64())

	burned := sink.ofKind(EventTokensBurned)
	require.Len(t, burned, 1)
	require.Equal(t, aliceAddr, burned[0].From)
	require.Equal(t, uint64(10), burned[0].Value.Uint64())

	transfers := sink.ofKind(EventTransfer)
	last := transfers[len(transfers)-1]
	require.Equal(t, uint64(990), last.Value.Uint64())
}

func TestBurnVariantHasNoExemptions(t *testing.T) {
	tok := newBurnToken(t, nil)
	supplyBefore := tok.TotalSupply().Uint64()

	// The privileged account is taxed like anyone else here.
	require.NoError(t, tok.Transfer(ownerAddr, aliceAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(990), balance(tok, aliceAddr))
	require.Equal(t, supplyBefore-10, tok.TotalSupply().Uint64())
}

func TestFeeTransfer(t *testing.T) {
	sink := &captureSink{}
	tok := newFeeToken(t, sink)
	mustMint(t, tok, aliceAddr, 10_000)
	supplyBefore := tok.TotalSupply().Uint64()

	require.NoError(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(1_000)))

	require.Equal(t, uint64(990), balance(tok, bobAddr))
	require.Equal(t, uint64(10), balance(tok, treasuryAddr))
	require.Equal(t, uint64(9_000), balance(tok, aliceAddr))
	require.Equal(t, supplyBefore, tok.TotalSupply().Uint64())

	fees := sink.ofKind(EventFeeCollected)
	require.Len(t, fees, 1)
	require.Equal(t, aliceAddr, fees[0].From)
	require.Equal(t, treasuryAddr, fees[0].To)
	require.Equal(t, uint64(10), fees[0].Value.Uint64())
}

func TestFeeExemptionForPrivilegedAccount(t *testing.T) {
	sink := &captureSink{}
	tok := newFeeToken(t, sink)
	mustMint(t, tok, aliceAddr, 10_000)

	// Privileged sender.
	require.NoError(t, tok.Transfer(ownerAddr, bobAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(1_000), balance(tok, bobAddr))

	// Privileged recipient.
	require.NoError(t, tok.Transfer(aliceAddr, ownerAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(9_000), balance(tok, aliceAddr))

	require.Empty(t, sink.ofKind(EventFeeCollected))
	require.Equal(t, uint64(0), balance(tok, treasuryAddr))
}

func TestFeeExemptionCoversDelegatedTransfers(t *testing.T) {
	sink := &captureSink{}
	tok := newFeeToken(t, sink)
	mustMint(t, tok, aliceAddr, 10_000)
	require.NoError(t, tok.Approve(aliceAddr, bobAddr, uint256.NewInt(2_000)))

	// The spender is not a party; only sender/recipient identity counts.
	require.NoError(t, tok.TransferFrom(bobAddr, aliceAddr, ownerAddr, uint256.NewInt(1_000)))
	require.Empty(t, sink.ofKind(EventFeeCollected))

	require.NoError(t, tok.TransferFrom(bobAddr, aliceAddr, carolAddr, uint256.NewInt(1_000)))
	fees := sink.ofKind(EventFeeCollected)
	require.Len(t, fees, 1)
	require.Equal(t, uint64(990), balance(tok, carolAddr))
}

func TestExemptionFollowsCurrentOwner(t *testing.T) {
	sink := &captureSink{}
	tok := newFeeToken(t, sink)
	mustMint(t, tok, aliceAddr, 10_000)

	require.NoError(t, tok.TransferOwnership(ownerAddr, carolAddr))

	// The old owner now pays the fee; the new owner is exempt.
	require.NoError(t, tok.Transfer(aliceAddr, ownerAddr, uint256.NewInt(1_000)))
	require.Len(t, sink.ofKind(EventFeeCollected), 1)

	require.NoError(t, tok.Transfer(aliceAddr, carolAddr, uint256.NewInt(1_000)))
	require.Len(t, sink.ofKind(EventFeeCollected), 1)
	require.Equal(t, uint64(1_000), balance(tok, carolAddr))
}

func TestSelfTransferUnderFeePolicy(t *testing.T) {
	tok := newFeeToken(t, nil)
	mustMint(t, tok, aliceAddr, 1_000)

	require.NoError(t, tok.Transfer(aliceAddr, aliceAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(990), balance(tok, aliceAddr))
	require.Equal(t, uint64(10), balance(tok, treasuryAddr))
}

func TestTransferToFeeReceiver(t *testing.T) {
	tok := newFeeToken(t, nil)
	mustMint(t, tok, aliceAddr, 1_000)

	// The receiver collects its own fee on top of the net amount.
	require.NoError(t, tok.Transfer(aliceAddr, treasuryAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(1_000), balance(tok, treasuryAddr))
	require.Equal(t, uint64(0), balance(tok, aliceAddr))
}

func TestSplitGrossExactness(t *testing.T) {
	for _, pct := range []uint64{0, 1, 5, 10} {
		for _, gross := range []uint64{0, 1, 9, 99, 100, 101, 999, 1_000, 12_345_678} {
			g := uint256.NewInt(gross)
			net, deducted, err := splitGross(g, pct)
			require.NoError(t, err)

			sum := new(uint256.Int).Add(net, deducted)
			require.Equal(t, gross, sum.Uint64(), "pct=%d gross=%d", pct, gross)
			require.Equal(t, gross*pct/100, deducted.Uint64(), "pct=%d gross=%d", pct, gross)
			if gross > 0 {
				require.True(t, deducted.Lt(g), "deducted must stay below gross")
			}
		}
	}
}

func TestSplitGrossOverflow(t *testing.T) {
	_, _, err := splitGross(UnlimitedAllowance(), 10)
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestFeeOverflowAbortsTransfer(t *testing.T) {
	cfg := feeConfig(nil)
	cfg.TaxPercent = 10
	cfg.InitialSupply = nil
	tok, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, tok.Mint(ownerAddr, aliceAddr, UnlimitedAllowance()))
	err = tok.Transfer(aliceAddr, bobAddr, UnlimitedAllowance())
	require.ErrorIs(t, err, ErrAmountOverflow)
	require.Equal(t, UnlimitedAllowance().String(), tok.BalanceOf(aliceAddr).String())
	require.True(t, tok.BalanceOf(bobAddr).IsZero())
}

func TestCalculateTaxAndNet(t *testing.T) {
	burn := newBurnToken(t, nil)
	fee := newFeeToken(t, nil)
	require.NoError(t, fee.SetTaxPercent(ownerAddr, 10))

	cases := []struct {
		tok      *Token
		value    uint64
		tax, net uint64
	}{
		{burn, 1_000, 10, 990},
		{burn, 99, 0, 99},
		{burn, 0, 0, 0},
		{fee, 1_000, 100, 900},
		{fee, 9, 0, 9},
	}
	for _, c := range cases {
		tax, err := c.tok.CalculateTax(uint256.NewInt(c.value))
		require.NoError(t, err)
		require.Equal(t, c.tax, tax.Uint64(), "tax of %d", c.value)

		net, err := c.tok.CalculateNetAmount(uint256.NewInt(c.value))
		require.NoError(t, err)
		require.Equal(t, c.net, net.Uint64(), "net of %d", c.value)
	}

	_, err := fee.CalculateTax(UnlimitedAllowance())
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestFeePercentZeroMovesFullAmount(t *testing.T) {
	sink := &captureSink{}
	cfg := feeConfig(sink)
	cfg.TaxPercent = 0
	tok, err := New(cfg)
	require.NoError(t, err)
	mustMint(t, tok, aliceAddr, 1_000)

	require.NoError(t, tok.Transfer(aliceAddr, bobAddr, uint256.NewInt(1_000)))
	require.Equal(t, uint64(1_000), balance(tok, bobAddr))
	require.Empty(t, sink.ofKind(EventFeeCollected))
}
