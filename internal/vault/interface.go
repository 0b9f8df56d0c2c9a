package vault

import (
	"context"
	"encoding/json"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/strategyvault/internal/strategy"
)

// StrategyManager defines the bookkeeping layer that owns a set of strategies.
// It funds deposits, prices and mints shares, pays out redemptions and serializes
// mutations per strategy. The HTTP API and the keeper both drive strategies through it.
type StrategyManager interface {
	// List returns every registered strategy in registration order.
	List() []*Entry

	// Get returns the strategy registered under id.
	Get(id string) (*Entry, error)

	// Deposit moves amounts from party to the strategy, invests them and mints shares once settled.
	Deposit(ctx context.Context, id, party string, amounts sdk.Coins, params json.RawMessage) (DepositOutcome, error)

	// ContinueDeposit resumes party's pending deposit.
	ContinueDeposit(ctx context.Context, id, party string, params json.RawMessage) (DepositOutcome, error)

	// Withdraw redeems party's shares and pays the realized assets once settled.
	Withdraw(ctx context.Context, id, party string, shares sdkmath.Int, params json.RawMessage) (WithdrawOutcome, error)

	// ContinueWithdrawal resumes party's pending withdrawal.
	ContinueWithdrawal(ctx context.Context, id, party string, params json.RawMessage) (WithdrawOutcome, error)

	// Compound harvests the strategy's rewards using its configured swap instructions.
	Compound(ctx context.Context, id, party string, params json.RawMessage) (strategy.CompoundResult, error)

	// RealizeYield measures and books the yield since the last measurement.
	RealizeYield(ctx context.Context, id string, manualOverride *sdkmath.Int) (sdkmath.Int, error)

	// UsdWorth values the strategy's position. nil rates uses the strategy's configured rates.
	UsdWorth(ctx context.Context, id string, rates []sdkmath.Int) (sdkmath.Int, error)

	// EmergencyWithdraw liquidates the whole position to recipient.
	EmergencyWithdraw(ctx context.Context, id, recipient string, params json.RawMessage) (sdk.Coins, error)
}
