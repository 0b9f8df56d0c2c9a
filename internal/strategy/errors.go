package strategy

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/strategyvault/internal/ledger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrManualYieldTooBig      = errors.New("manual yield above positive limit")
	ErrManualYieldTooSmall    = errors.New("manual yield below negative limit")
	ErrPendingOperationExists = errors.New("pending operation exists")
	ErrNoPendingOperation     = errors.New("no pending operation")
	ErrInsufficientShares     = ledger.ErrInsufficientShares
	ErrInvalidAmount          = ledger.ErrInvalidAmount
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrInvalidAssetGroup      = errors.New("invalid asset group")
	ErrUnauthorized           = errors.New("caller is not the strategy owner")
	ErrInvalidParams          = errors.New("invalid operation params")
	ErrInvalidParty           = errors.New("party is empty")
	ErrResidualPosition       = errors.New("position not fully liquidated")
	ErrMissingSwapInstruction = errors.New("missing swap instruction")
	ErrInvalidConfig          = errors.New("invalid strategy configuration")
	ErrAdapterContract        = errors.New("adapter violated its declared policy")
)

// ManualYieldError reports an attested yield outside the configured bounds.
type ManualYieldError struct {
	Err   error // ErrManualYieldTooBig or ErrManualYieldTooSmall
	Yield sdkmath.Int
	Limit sdkmath.Int
}

func (e *ManualYieldError) Error() string {
	return fmt.Sprintf("%s: %s (limit %s)", e.Err, e.Yield, e.Limit)
}

func (e *ManualYieldError) Unwrap() error {
	return e.Err
}
