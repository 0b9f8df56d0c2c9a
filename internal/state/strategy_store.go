/*

This file persists strategy snapshots and operation receipts. StrategyStore satisfies the
strategy engine's Store interface, so every committed operation lands here.

*/

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/strategyvault/internal/types"
)

// ErrStateNotFound is returned when no snapshot exists for a strategy.
var ErrStateNotFound = errors.New("strategy state not found")

// StrategyStore writes through the global DB pool.
type StrategyStore struct{}

// NewStrategyStore returns a store backed by DB.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{}
}

// SaveOperation writes the strategy snapshot and the receipt of the operation that produced it
// in one transaction, so an aborted operation leaves neither behind.
func (StrategyStore) SaveOperation(ctx context.Context, state types.StrategyState, receipt types.OperationReceipt) (err error) {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Str("strategy_id", state.StrategyID).Msg("Failed to roll back operation")
			}
		}
	}()

	if err = saveStrategyState(ctx, tx, state); err != nil {
		return err
	}
	if _, err = saveReceipt(ctx, tx, receipt); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit operation: %w", err)
	}
	return nil
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveStrategyState upserts the latest snapshot of a strategy.
func SaveStrategyState(ctx context.Context, state types.StrategyState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return saveStrategyState(ctx, DB, state)
}

func saveStrategyState(ctx context.Context, db dbtx, state types.StrategyState) error {
	balancesJSON, err := json.Marshal(state.Balances)
	if err != nil {
		return fmt.Errorf("failed to marshal balances: %w", err)
	}
	pending := state.Pending
	if pending == nil {
		pending = []types.PendingOperation{}
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending operations: %w", err)
	}

	query := `
		INSERT INTO strategy_state (strategy_id, asset_group, reference_price, total_supply, balances, pending, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (strategy_id) DO UPDATE SET
			asset_group = EXCLUDED.asset_group,
			reference_price = EXCLUDED.reference_price,
			total_supply = EXCLUDED.total_supply,
			balances = EXCLUDED.balances,
			pending = EXCLUDED.pending,
			updated_at = EXCLUDED.updated_at;`

	_, err = db.ExecContext(ctx, query,
		state.StrategyID,
		pq.Array([]string(state.AssetGroup)),
		decString(state.ReferencePrice),
		intString(state.TotalSupply),
		balancesJSON,
		pendingJSON,
		state.UpdatedAt,
	)
	if err != nil {
		log.Error().Err(err).Str("strategy_id", state.StrategyID).Msg("Failed to save strategy state")
		return fmt.Errorf("failed to save strategy state: %w", err)
	}
	return nil
}

// LoadStrategyState returns the latest snapshot of strategyID or ErrStateNotFound.
func LoadStrategyState(ctx context.Context, strategyID string) (types.StrategyState, error) {
	if DB == nil {
		return types.StrategyState{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT strategy_id, asset_group, reference_price, total_supply, balances, pending, updated_at
		FROM strategy_state
		WHERE strategy_id = $1;`

	var (
		state                     types.StrategyState
		assetGroup                []string
		refPrice, totalSupply     string
		balancesJSON, pendingJSON []byte
	)
	err := DB.QueryRowContext(ctx, query, strategyID).Scan(
		&state.StrategyID, pq.Array(&assetGroup), &refPrice, &totalSupply,
		&balancesJSON, &pendingJSON, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.StrategyState{}, fmt.Errorf("%w: %s", ErrStateNotFound, strategyID)
		}
		return types.StrategyState{}, fmt.Errorf("failed to query strategy state: %w", err)
	}

	state.AssetGroup = assetGroup
	if state.ReferencePrice, err = sdkmath.LegacyNewDecFromStr(refPrice); err != nil {
		return types.StrategyState{}, fmt.Errorf("invalid stored reference price %q: %w", refPrice, err)
	}
	if state.TotalSupply, err = parseInt(totalSupply); err != nil {
		return types.StrategyState{}, fmt.Errorf("invalid stored total supply: %w", err)
	}
	if err := json.Unmarshal(balancesJSON, &state.Balances); err != nil {
		return types.StrategyState{}, fmt.Errorf("failed to unmarshal balances: %w", err)
	}
	if err := json.Unmarshal(pendingJSON, &state.Pending); err != nil {
		return types.StrategyState{}, fmt.Errorf("failed to unmarshal pending operations: %w", err)
	}

	log.Debug().Str("strategy_id", strategyID).Int("pending", len(state.Pending)).Msg("Loaded strategy state")
	return state, nil
}

// SaveReceipt appends a receipt and returns its row id.
func SaveReceipt(ctx context.Context, receipt types.OperationReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	return saveReceipt(ctx, DB, receipt)
}

func saveReceipt(ctx context.Context, db dbtx, receipt types.OperationReceipt) (int64, error) {
	var assetsJSON []byte
	if !receipt.Assets.Empty() {
		var err error
		if assetsJSON, err = json.Marshal(receipt.Assets); err != nil {
			return 0, fmt.Errorf("failed to marshal receipt assets: %w", err)
		}
	}

	query := `
		INSERT INTO operation_receipts (
			operation_id, strategy_id, party, operation_type, finished,
			shares, position_delta, assets, yield, operation_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING receipt_id;`

	var id int64
	err := db.QueryRowContext(ctx, query,
		receipt.OperationID, receipt.StrategyID, receipt.Party, string(receipt.Type), receipt.Finished,
		intString(receipt.Shares), intString(receipt.PositionDelta), nullableJSON(assetsJSON),
		intString(receipt.Yield), receipt.Timestamp,
	).Scan(&id)
	if err != nil {
		log.Error().Err(err).
			Str("strategy_id", receipt.StrategyID).
			Str("operation_id", receipt.OperationID).
			Msg("Failed to save operation receipt")
		return 0, fmt.Errorf("failed to save operation receipt: %w", err)
	}
	return id, nil
}

func intString(i sdkmath.Int) string {
	if i.IsNil() {
		return "0"
	}
	return i.String()
}

func decString(d sdkmath.LegacyDec) string {
	if d.IsNil() {
		return "0"
	}
	return d.String()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func parseInt(s string) (sdkmath.Int, error) {
	i, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer %q", s)
	}
	return i, nil
}
