package web

import (
	"context"

	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/strategyvault/internal/keeper"
	"github.com/elys-network/strategyvault/internal/state"
	"github.com/elys-network/strategyvault/internal/types"
)

// History is where the server reads keeper cycles and yield records from.
type History interface {
	Cycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error)
	Yields(ctx context.Context, strategyID string, limit int) ([]types.YieldRecord, error)
}

// Faucet credits simulated accounts.
type Faucet interface {
	Mint(addr string, coins sdktypes.Coins) error
}

// DBHistory reads history from Postgres.
type DBHistory struct{}

func (DBHistory) Cycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	return state.GetRecentCycles(ctx, limit)
}

func (DBHistory) Yields(ctx context.Context, strategyID string, limit int) ([]types.YieldRecord, error) {
	return state.GetYieldHistory(ctx, strategyID, limit)
}

// MemoryHistory reads history from an in-process recorder.
type MemoryHistory struct {
	Recorder *keeper.MemoryRecorder
}

func (m MemoryHistory) Cycles(_ context.Context, limit int) ([]types.CycleSnapshot, error) {
	return m.Recorder.Cycles(limit), nil
}

func (m MemoryHistory) Yields(_ context.Context, strategyID string, limit int) ([]types.YieldRecord, error) {
	records := m.Recorder.Yields(strategyID)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
