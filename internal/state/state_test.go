package state

import (
	"context"
	"os"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/strategyvault/internal/types"
)

// setupDB connects to TEST_DATABASE_URL and recreates the schema.
func setupDB(t *testing.T) context.Context {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, InitDBFromURL(url))
	t.Cleanup(CloseDB)
	require.NoError(t, DropSchema())
	require.NoError(t, EnsureSchema())
	return context.Background()
}

func TestStoreWithoutDatabase(t *testing.T) {
	saved := DB
	DB = nil
	defer func() { DB = saved }()

	err := NewStrategyStore().SaveOperation(context.Background(), types.StrategyState{StrategyID: "x"}, types.OperationReceipt{})
	assert.Error(t, err)
	_, err = LoadStrategyState(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, TestDBConnection())
}

func TestStrategyStateRoundTrip(t *testing.T) {
	ctx := setupDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := LoadStrategyState(ctx, "usdc-lending")
	require.ErrorIs(t, err, ErrStateNotFound)

	st := types.StrategyState{
		StrategyID:     "usdc-lending",
		AssetGroup:     types.AssetGroup{"uusdc"},
		ReferencePrice: sdkmath.LegacyMustNewDecFromStr("1.05"),
		TotalSupply:    sdkmath.NewInt(1_500),
		Balances: []types.ShareBalance{
			{Holder: "alice", Amount: sdkmath.NewInt(1_000)},
			{Holder: "bob", Amount: sdkmath.NewInt(500)},
		},
		Pending: []types.PendingOperation{{
			ID:     uuid.NewString(),
			Party:  "bob",
			Kind:   types.OperationWithdrawal,
			Shares: sdkmath.NewInt(100),
			Continuation: types.Continuation{
				Venue:   "lending",
				Step:    "unbonding",
				Ticket:  "t-1",
				Amount:  sdkmath.NewInt(100),
				ReadyAt: now.Add(time.Hour),
			},
			CreatedAt: now,
		}},
		UpdatedAt: now,
	}
	require.NoError(t, SaveStrategyState(ctx, st))

	st.TotalSupply = sdkmath.NewInt(1_400)
	st.Balances[1].Amount = sdkmath.NewInt(400)
	require.NoError(t, SaveStrategyState(ctx, st))

	got, err := LoadStrategyState(ctx, "usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, "1400", got.TotalSupply.String())
	assert.True(t, got.ReferencePrice.Equal(st.ReferencePrice))
	assert.Equal(t, []string{"uusdc"}, []string(got.AssetGroup))
	require.Len(t, got.Balances, 2)
	assert.Equal(t, "400", got.Balances[1].Amount.String())
	require.Len(t, got.Pending, 1)
	assert.Equal(t, "t-1", got.Pending[0].Continuation.Ticket)
	assert.True(t, got.Pending[0].Continuation.ReadyAt.Equal(now.Add(time.Hour)))
}

func TestSaveOperationIsAtomic(t *testing.T) {
	ctx := setupDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStrategyStore()

	st := types.StrategyState{
		StrategyID:     "usdc-lending",
		AssetGroup:     types.AssetGroup{"uusdc"},
		ReferencePrice: sdkmath.LegacyOneDec(),
		TotalSupply:    sdkmath.NewInt(1_000),
		Balances:       []types.ShareBalance{{Holder: "alice", Amount: sdkmath.NewInt(1_000)}},
		UpdatedAt:      now,
	}
	receipt := types.OperationReceipt{
		OperationID:   uuid.NewString(),
		StrategyID:    "usdc-lending",
		Party:         "vault",
		Type:          types.OpMint,
		Finished:      true,
		Shares:        sdkmath.NewInt(1_000),
		PositionDelta: sdkmath.ZeroInt(),
		Yield:         sdkmath.ZeroInt(),
		Timestamp:     now,
	}
	require.NoError(t, store.SaveOperation(ctx, st, receipt))

	st.TotalSupply = sdkmath.NewInt(2_000)
	st.Balances[0].Amount = sdkmath.NewInt(2_000)
	receipt.OperationID = "not-a-uuid"
	require.Error(t, store.SaveOperation(ctx, st, receipt))

	got, err := LoadStrategyState(ctx, "usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, "1000", got.TotalSupply.String(), "state of the failed operation must not be kept")
	receipts, err := GetRecentReceipts(ctx, "usdc-lending", 0)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestReceiptsAndSummary(t *testing.T) {
	ctx := setupDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, SaveStrategyState(ctx, types.StrategyState{
		StrategyID:     "usdc-lending",
		AssetGroup:     types.AssetGroup{"uusdc"},
		ReferencePrice: sdkmath.LegacyOneDec(),
		TotalSupply:    sdkmath.NewInt(1_000),
		Balances:       []types.ShareBalance{{Holder: "alice", Amount: sdkmath.NewInt(1_000)}},
		UpdatedAt:      now,
	}))

	for i, op := range []types.OperationType{types.OpDeposit, types.OpWithdrawal} {
		_, err := SaveReceipt(ctx, types.OperationReceipt{
			OperationID:   uuid.NewString(),
			StrategyID:    "usdc-lending",
			Party:         "alice",
			Type:          op,
			Finished:      true,
			Shares:        sdkmath.NewInt(1_000),
			PositionDelta: sdkmath.NewInt(-250),
			Assets:        sdktypes.NewCoins(sdktypes.NewInt64Coin("uusdc", 250)),
			Yield:         sdkmath.ZeroInt(),
			Timestamp:     now.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	receipts, err := GetRecentReceipts(ctx, "usdc-lending", 0)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, types.OpWithdrawal, receipts[0].Type)
	assert.Equal(t, "-250", receipts[0].PositionDelta.String())
	assert.Equal(t, "250uusdc", receipts[0].Assets.String())

	_, err = SaveCycleSnapshot(ctx, types.CycleSnapshot{
		CycleID:     uuid.NewString(),
		CycleNumber: 1,
		Timestamp:   now,
		Results:     []types.HarvestResult{{StrategyID: "usdc-lending", Yield: sdkmath.NewInt(5), CompoundYield: sdkmath.ZeroInt()}},
	}, []types.YieldRecord{
		{StrategyID: "usdc-lending", CycleNumber: 1, Source: types.YieldFromPrice, Yield: sdkmath.NewInt(5), ReferencePrice: sdkmath.LegacyOneDec(), TotalSupply: sdkmath.NewInt(1_000), Timestamp: now},
		{StrategyID: "usdc-lending", CycleNumber: 1, Source: types.YieldFromCompound, Yield: sdkmath.NewInt(7), ReferencePrice: sdkmath.LegacyOneDec(), TotalSupply: sdkmath.NewInt(1_000), Timestamp: now},
	})
	require.NoError(t, err)

	history, err := GetYieldHistory(ctx, "usdc-lending", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	cycles, err := GetRecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Empty(t, cycles[0].FailedStrategies)
	require.Len(t, cycles[0].Results, 1)

	summary, err := GetStrategySummary(ctx, "usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Operations)
	assert.Equal(t, "12", summary.CumulativeYield)
	assert.Equal(t, 1, summary.Holders)
}

func TestCycleCounter(t *testing.T) {
	ctx := setupDB(t)

	n, err := GetCurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, ResetCycleNumber(ctx, 41))
	n, err = IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	assert.Error(t, ResetCycleNumber(ctx, -1))
}
