/*

This file contains the types describing in-flight settlement: pending operations and the
continuation a venue hands back when it cannot settle within a single call.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// OperationKind identifies which half of the state machine a pending record belongs to.
type OperationKind string

const (
	OperationDeposit    OperationKind = "deposit"
	OperationWithdrawal OperationKind = "withdrawal"
)

// Continuation is the saga state produced by an initializing venue call and consumed by the
// continuing one. Venues fill the fields they need; the engine persists it as-is.
type Continuation struct {
	Venue   string         `json:"venue"`
	Step    string         `json:"step"`
	Ticket  string         `json:"ticket,omitempty"`   // venue-side request id
	Amount  sdkmath.Int    `json:"amount"`             // adapter-native amount in flight
	Assets  sdktypes.Coins `json:"assets,omitempty"`   // underlying assets in flight
	ReadyAt time.Time      `json:"ready_at,omitempty"` // earliest time the venue will settle
}

// PendingOperation records an operation that was initialized but not yet continued.
type PendingOperation struct {
	ID             string         `json:"id"`
	Party          string         `json:"party"`
	Kind           OperationKind  `json:"kind"`
	Amounts        sdktypes.Coins `json:"amounts,omitempty"` // deposit only
	Shares         sdkmath.Int    `json:"shares"`            // withdrawal only
	SharesDeducted bool           `json:"shares_deducted"`
	Compound       bool           `json:"compound,omitempty"` // reinvestment started by Compound
	Continuation   Continuation   `json:"continuation"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PendingKey is the map key for a party's pending operation of a given kind.
func PendingKey(party string, kind OperationKind) string {
	return string(kind) + "/" + party
}
