package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/strategyvault/internal/types"
)

// StrategySummary represents high-level statistics of one strategy
type StrategySummary struct {
	StrategyID      string `json:"strategy_id"`
	TotalSupply     string `json:"total_supply"`
	ReferencePrice  string `json:"reference_price"`
	Holders         int    `json:"holders"`
	Pending         int    `json:"pending"`
	Operations      int    `json:"operations"`
	CumulativeYield string `json:"cumulative_yield"`
	LastUpdated     string `json:"last_updated"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10 // Default limit
	}
	return limit
}

// GetRecentCycles retrieves recent keeper cycles, newest first
func GetRecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_id, cycle_id, cycle_number, snapshot_timestamp, results, failed_strategies
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1
	`

	rows, err := DB.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	cycles := []types.CycleSnapshot{}
	for rows.Next() {
		var cycle types.CycleSnapshot
		var resultsJSON []byte
		err := rows.Scan(
			&cycle.SnapshotID, &cycle.CycleID, &cycle.CycleNumber, &cycle.Timestamp,
			&resultsJSON, pq.Array(&cycle.FailedStrategies),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		if len(resultsJSON) > 0 {
			if err := json.Unmarshal(resultsJSON, &cycle.Results); err != nil {
				log.Error().Err(err).Int("cycle_number", cycle.CycleNumber).Msg("Failed to unmarshal harvest results")
				continue
			}
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return cycles, nil
}

// GetRecentReceipts retrieves a strategy's latest operation receipts, newest first
func GetRecentReceipts(ctx context.Context, strategyID string, limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT receipt_id, operation_id, strategy_id, party, operation_type, finished,
		       shares, position_delta, assets, yield, operation_timestamp
		FROM operation_receipts
		WHERE strategy_id = $1
		ORDER BY operation_timestamp DESC, receipt_id DESC
		LIMIT $2
	`

	rows, err := DB.QueryContext(ctx, query, strategyID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []types.OperationReceipt{}
	for rows.Next() {
		var (
			r                     types.OperationReceipt
			opType                string
			shares, delta, yieldS string
			assetsJSON            []byte
		)
		if err := rows.Scan(
			&r.ReceiptID, &r.OperationID, &r.StrategyID, &r.Party, &opType, &r.Finished,
			&shares, &delta, &assetsJSON, &yieldS, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		r.Type = types.OperationType(opType)
		if r.Shares, err = parseInt(shares); err != nil {
			return nil, err
		}
		if r.PositionDelta, err = parseInt(delta); err != nil {
			return nil, err
		}
		if r.Yield, err = parseInt(yieldS); err != nil {
			return nil, err
		}
		if len(assetsJSON) > 0 {
			if err := json.Unmarshal(assetsJSON, &r.Assets); err != nil {
				return nil, fmt.Errorf("failed to unmarshal receipt assets: %w", err)
			}
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}

// GetYieldHistory retrieves a strategy's realized yields, newest first
func GetYieldHistory(ctx context.Context, strategyID string, limit int) ([]types.YieldRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT record_id, strategy_id, cycle_number, source, yield, reference_price, total_supply, recorded_at
		FROM yield_history
		WHERE strategy_id = $1
		ORDER BY recorded_at DESC, record_id DESC
		LIMIT $2
	`

	rows, err := DB.QueryContext(ctx, query, strategyID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query yield history: %w", err)
	}
	defer rows.Close()

	records := []types.YieldRecord{}
	for rows.Next() {
		var (
			y                     types.YieldRecord
			source                string
			yieldS, price, supply string
		)
		if err := rows.Scan(&y.RecordID, &y.StrategyID, &y.CycleNumber, &source, &yieldS, &price, &supply, &y.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan yield row: %w", err)
		}
		y.Source = types.YieldSource(source)
		if y.Yield, err = parseInt(yieldS); err != nil {
			return nil, err
		}
		if y.ReferencePrice, err = sdkmath.LegacyNewDecFromStr(price); err != nil {
			return nil, fmt.Errorf("invalid stored reference price %q: %w", price, err)
		}
		if y.TotalSupply, err = parseInt(supply); err != nil {
			return nil, err
		}
		records = append(records, y)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// GetStrategySummary aggregates the stored snapshot, receipts and yield history of a strategy
func GetStrategySummary(ctx context.Context, strategyID string) (*StrategySummary, error) {
	st, err := LoadStrategyState(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	summary := &StrategySummary{
		StrategyID:     st.StrategyID,
		TotalSupply:    st.TotalSupply.String(),
		ReferencePrice: st.ReferencePrice.String(),
		Holders:        len(st.Balances),
		Pending:        len(st.Pending),
		LastUpdated:    st.UpdatedAt.UTC().Format(time.RFC3339),
	}

	err = DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM operation_receipts WHERE strategy_id = $1`, strategyID).Scan(&summary.Operations)
	if err != nil {
		log.Error().Err(err).Str("strategy_id", strategyID).Msg("Failed to count receipts")
	}

	var cumulative sql.NullString
	err = DB.QueryRowContext(ctx, `SELECT SUM(yield) FROM yield_history WHERE strategy_id = $1`, strategyID).Scan(&cumulative)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to sum yield history: %w", err)
	}
	summary.CumulativeYield = "0"
	if cumulative.Valid {
		summary.CumulativeYield = cumulative.String
	}

	return summary, nil
}
