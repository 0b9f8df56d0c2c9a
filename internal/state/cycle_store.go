package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/strategyvault/internal/types"
)

// SaveCycleSnapshot stores a keeper cycle together with the yield records it produced.
// Both are written in one transaction.
func SaveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot, yields []types.YieldRecord) (snapshotID int64, err error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	resultsJSON, err := json.Marshal(snapshot.Results)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal harvest results: %w", err)
	}
	failed := snapshot.FailedStrategies
	if failed == nil {
		failed = []string{}
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback cycle snapshot transaction")
			}
		} else {
			err = tx.Commit()
			if err != nil {
				log.Error().Err(err).Msg("Failed to commit cycle snapshot transaction")
			}
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO cycle_snapshots (cycle_id, cycle_number, snapshot_timestamp, results, failed_strategies)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING snapshot_id;`,
		snapshot.CycleID, snapshot.CycleNumber, snapshot.Timestamp, resultsJSON, pq.Array(failed),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert cycle snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO yield_history (strategy_id, cycle_number, source, yield, reference_price, total_supply, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare yield insert: %w", err)
	}
	defer stmt.Close()

	for _, y := range yields {
		_, err = stmt.ExecContext(ctx,
			y.StrategyID, y.CycleNumber, string(y.Source), intString(y.Yield),
			decString(y.ReferencePrice), intString(y.TotalSupply), y.Timestamp,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert yield record for %s: %w", y.StrategyID, err)
		}
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Int("yield_records", len(yields)).
		Msg("Saved cycle snapshot")
	return snapshotID, nil
}
