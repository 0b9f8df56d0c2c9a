/*

This file contains the records written by the keeper: one harvest result per strategy per cycle
and the yield history derived from them.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// YieldSource tells where a realized yield figure came from.
type YieldSource string

const (
	YieldFromCompound YieldSource = "compound"
	YieldFromPrice    YieldSource = "price"
	YieldFromManual   YieldSource = "manual"
)

// HarvestResult is the outcome of one strategy's compound + yield step in a keeper cycle.
type HarvestResult struct {
	StrategyID     string            `json:"strategy_id"`
	Rewards        sdktypes.Coins    `json:"rewards,omitempty"`
	Reinvested     sdktypes.Coins    `json:"reinvested,omitempty"`
	CompoundYield  sdkmath.Int       `json:"compound_yield"`
	Yield          sdkmath.Int       `json:"yield"`
	ReferencePrice sdkmath.LegacyDec `json:"reference_price"`
	TotalSupply    sdkmath.Int       `json:"total_supply"`
	Finished       bool              `json:"finished"`
	Error          string            `json:"error,omitempty"`
}

// CycleSnapshot is the record of a full keeper cycle.
type CycleSnapshot struct {
	SnapshotID       int64           `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	CycleID          string          `json:"cycle_id"`
	CycleNumber      int             `json:"cycle_number"`
	Timestamp        time.Time       `json:"timestamp"`
	Results          []HarvestResult `json:"results"`
	FailedStrategies []string        `json:"failed_strategies"`
}

// YieldRecord is one realized yield measurement.
type YieldRecord struct {
	RecordID       int64             `json:"record_id,omitempty"`
	StrategyID     string            `json:"strategy_id"`
	CycleNumber    int               `json:"cycle_number"`
	Source         YieldSource       `json:"source"`
	Yield          sdkmath.Int       `json:"yield"`
	ReferencePrice sdkmath.LegacyDec `json:"reference_price"`
	TotalSupply    sdkmath.Int       `json:"total_supply"`
	Timestamp      time.Time         `json:"timestamp"`
}
