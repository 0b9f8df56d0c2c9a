package keeper

import (
	"context"
	"sync"

	"github.com/elys-network/strategyvault/internal/state"
	"github.com/elys-network/strategyvault/internal/types"
)

// Recorder numbers cycles and stores their outcome.
type Recorder interface {
	NextCycleNumber(ctx context.Context) (int, error)
	SaveCycle(ctx context.Context, snapshot types.CycleSnapshot, yields []types.YieldRecord) error
}

// DBRecorder persists cycles through the state package.
type DBRecorder struct{}

func (DBRecorder) NextCycleNumber(ctx context.Context) (int, error) {
	return state.IncrementCycleNumber(ctx)
}

func (DBRecorder) SaveCycle(ctx context.Context, snapshot types.CycleSnapshot, yields []types.YieldRecord) error {
	_, err := state.SaveCycleSnapshot(ctx, snapshot, yields)
	return err
}

// MemoryRecorder keeps cycles in process. Used when no database is configured.
type MemoryRecorder struct {
	mu     sync.Mutex
	count  int
	cycles []types.CycleSnapshot
	yields []types.YieldRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) NextCycleNumber(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	return m.count, nil
}

func (m *MemoryRecorder) SaveCycle(_ context.Context, snapshot types.CycleSnapshot, yields []types.YieldRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, snapshot)
	m.yields = append(m.yields, yields...)
	return nil
}

// Cycles returns the stored cycles, newest first, at most limit of them.
func (m *MemoryRecorder) Cycles(limit int) []types.CycleSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CycleSnapshot, 0, len(m.cycles))
	for i := len(m.cycles) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.cycles[i])
	}
	return out
}

// Yields returns the stored yield records of strategyID, newest first.
func (m *MemoryRecorder) Yields(strategyID string) []types.YieldRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.YieldRecord
	for i := len(m.yields) - 1; i >= 0; i-- {
		if m.yields[i].StrategyID == strategyID {
			out = append(out, m.yields[i])
		}
	}
	return out
}
