package ledger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/types"
)

func sumBalances(l *Ledger) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, b := range l.Balances() {
		total = total.Add(b.Amount)
	}
	return total
}

func TestMintAndBurnKeepSupplyInvariant(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("vault", sdkmath.NewInt(100)))
	require.NoError(t, l.Mint("fees", sdkmath.NewInt(7)))
	require.NoError(t, l.Burn("vault", sdkmath.NewInt(60)))

	assert.Equal(t, "40", l.BalanceOf("vault").String())
	assert.Equal(t, "7", l.BalanceOf("fees").String())
	assert.Equal(t, "47", l.TotalSupply().String())
	assert.True(t, sumBalances(l).Equal(l.TotalSupply()))
}

func TestBurnMoreThanBalance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("vault", sdkmath.NewInt(10)))

	err := l.Burn("vault", sdkmath.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientShares)
	assert.Equal(t, "10", l.TotalSupply().String())

	err = l.Burn("nobody", sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	l := New()
	require.ErrorIs(t, l.Mint("vault", sdkmath.ZeroInt()), ErrInvalidAmount)
	require.ErrorIs(t, l.Mint("vault", sdkmath.NewInt(-5)), ErrInvalidAmount)
	require.ErrorIs(t, l.Burn("vault", sdkmath.Int{}), ErrInvalidAmount)
	require.ErrorIs(t, l.Mint("", sdkmath.NewInt(1)), ErrInvalidHolder)
}

func TestFullBurnRemovesHolder(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("vault", sdkmath.NewInt(5)))
	require.NoError(t, l.Burn("vault", sdkmath.NewInt(5)))

	assert.Empty(t, l.Balances())
	assert.True(t, l.TotalSupply().IsZero())
}

func TestCloneIsIndependent(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("vault", sdkmath.NewInt(5)))

	c := l.Clone()
	require.NoError(t, c.Mint("vault", sdkmath.NewInt(5)))

	assert.Equal(t, "5", l.TotalSupply().String())
	assert.Equal(t, "10", c.TotalSupply().String())
}

func TestFromBalances(t *testing.T) {
	l, err := FromBalances([]types.ShareBalance{
		{Holder: "a", Amount: sdkmath.NewInt(3)},
		{Holder: "b", Amount: sdkmath.NewInt(4)},
		{Holder: "c", Amount: sdkmath.ZeroInt()},
	})
	require.NoError(t, err)
	assert.Equal(t, "7", l.TotalSupply().String())
	assert.Len(t, l.Balances(), 2)
}
