/*

This file contains the serializable snapshot of a strategy and the receipts written for every committed operation.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// ShareBalance is a single ledger entry.
type ShareBalance struct {
	Holder string      `json:"holder"`
	Amount sdkmath.Int `json:"amount"`
}

// StrategyState is everything the engine needs to resume a strategy after a restart.
type StrategyState struct {
	StrategyID     string             `json:"strategy_id"`
	AssetGroup     AssetGroup         `json:"asset_group"`
	ReferencePrice sdkmath.LegacyDec  `json:"reference_price"`
	TotalSupply    sdkmath.Int        `json:"total_supply"`
	Balances       []ShareBalance     `json:"balances"`
	Pending        []PendingOperation `json:"pending"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// OperationType names a caller-facing operation for receipts, logs and metrics.
type OperationType string

const (
	OpDeposit            OperationType = "DEPOSIT"
	OpContinueDeposit    OperationType = "CONTINUE_DEPOSIT"
	OpWithdrawal         OperationType = "WITHDRAWAL"
	OpContinueWithdrawal OperationType = "CONTINUE_WITHDRAWAL"
	OpCompound           OperationType = "COMPOUND"
	OpYield              OperationType = "YIELD"
	OpEmergencyWithdraw  OperationType = "EMERGENCY_WITHDRAW"
	OpMint               OperationType = "MINT"
	OpClaim              OperationType = "CLAIM"
)

// OperationReceipt is the audit record of one committed operation.
type OperationReceipt struct {
	ReceiptID     int64          `json:"receipt_id,omitempty"` // Auto-incremented by DB
	OperationID   string         `json:"operation_id"`
	StrategyID    string         `json:"strategy_id"`
	Party         string         `json:"party"`
	Type          OperationType  `json:"type"`
	Finished      bool           `json:"finished"`
	Shares        sdkmath.Int    `json:"shares"`
	PositionDelta sdkmath.Int    `json:"position_delta"`
	Assets        sdktypes.Coins `json:"assets,omitempty"`
	Yield         sdkmath.Int    `json:"yield"`
	Timestamp     time.Time      `json:"timestamp"`
}
