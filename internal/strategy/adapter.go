package strategy

import (
	"context"
	"encoding/json"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/strategyvault/internal/types"
)

// Policy is the settlement behaviour a venue adapter declares.
type Policy struct {
	AtomicDeposit    bool `json:"atomic_deposit"`
	AtomicWithdrawal bool `json:"atomic_withdrawal"`
	// DeductSharesOnInit burns redeemed shares when a non-atomic withdrawal is initialized
	// instead of when it is continued. Venues that move the position out at initialization
	// need it so later redeemers are priced against the remaining position.
	DeductSharesOnInit bool `json:"deduct_shares_on_init"`
}

// InvestResult is returned by Adapter.Invest and Settler.ContinueInvest.
type InvestResult struct {
	Finished     bool
	Continuation types.Continuation
}

// DivestResult is returned by Adapter.Divest and Settler.ContinueDivest.
// Assets is what the venue reports; the engine trusts the bank balance delta.
type DivestResult struct {
	Assets       sdktypes.Coins
	Finished     bool
	Continuation types.Continuation
}

// Adapter translates the generic operations into calls on one venue. Every call names the
// holder (the strategy's account) so a venue can serve several strategies.
type Adapter interface {
	Venue() string
	Policy() Policy

	// Invest moves amounts from holder into the venue.
	Invest(ctx context.Context, holder string, amounts sdktypes.Coins, params types.OperationParams) (InvestResult, error)
	// Divest turns position adapter-native units back into underlying assets paid to holder.
	Divest(ctx context.Context, holder string, position sdkmath.Int, params types.OperationParams) (DivestResult, error)
	// ClaimRewards pays accrued rewards to holder and returns them.
	ClaimRewards(ctx context.Context, holder string, params types.OperationParams) (sdktypes.Coins, error)
	// PendingRewards reports what ClaimRewards would pay without claiming.
	PendingRewards(ctx context.Context, holder string) (sdktypes.Coins, error)
	// NativeBalance is holder's position in adapter-native units.
	NativeBalance(ctx context.Context, holder string) (sdkmath.Int, error)
	// PositionAssets converts adapter-native units into underlying asset amounts.
	PositionAssets(ctx context.Context, position sdkmath.Int) (sdktypes.Coins, error)
	// EmergencyWithdraw liquidates holder's whole position, including anything in flight.
	EmergencyWithdraw(ctx context.Context, holder string, params types.OperationParams) (sdktypes.Coins, error)
}

// Settler is implemented by adapters of venues that cannot settle in a single call.
type Settler interface {
	ContinueInvest(ctx context.Context, holder string, cont types.Continuation, params types.OperationParams) (InvestResult, error)
	ContinueDivest(ctx context.Context, holder string, cont types.Continuation, params types.OperationParams) (DivestResult, error)
}

// PriceReader is implemented by adapters whose price per native unit can be read synchronously.
// Adapters without it require manual yield attestation.
type PriceReader interface {
	CurrentPrice(ctx context.Context) (sdkmath.LegacyDec, error)
}

// ParamsDecoder lets outer layers build an adapter's typed params from JSON.
type ParamsDecoder interface {
	DecodeParams(raw json.RawMessage) (types.OperationParams, error)
}

// PriceFeed converts asset amounts to and from the common USD unit.
type PriceFeed interface {
	AssetToUsd(asset string, amount sdkmath.Int, rate sdkmath.Int) (sdkmath.Int, error)
	UsdToAsset(asset string, usd sdkmath.Int, rate sdkmath.Int) (sdkmath.Int, error)
}

// SwapRouter executes swap instructions and pays the outputs to recipient.
type SwapRouter interface {
	Swap(ctx context.Context, tokens sdktypes.Coins, instructions []types.SwapInstruction, recipient string) (sdktypes.Coins, error)
}

// Bank holds the strategy's own (idle) asset balances.
type Bank interface {
	Balance(ctx context.Context, addr string) (sdktypes.Coins, error)
	Send(ctx context.Context, from, to string, coins sdktypes.Coins) error
}

// Checkpointer is implemented by collaborators that can undo their own state changes.
// Checkpoint returns the context the operation must run with and a function undoing the
// changes made under it. Changes made by other operations in the meantime are kept.
type Checkpointer interface {
	Checkpoint(ctx context.Context) (context.Context, func())
}

// Store persists strategy state and receipts after every committed operation. The snapshot and
// the receipt must be written atomically.
type Store interface {
	SaveOperation(ctx context.Context, state types.StrategyState, receipt types.OperationReceipt) error
}
