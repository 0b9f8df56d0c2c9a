package types

import (
	sdkmath "cosmossdk.io/math"
)

// SwapInstruction tells the swap router how to convert one reward asset into a base asset.
type SwapInstruction struct {
	Venue        string      `json:"venue" toml:"venue"` // must be allowlisted by the router
	TokenIn      string      `json:"token_in" toml:"token_in"`
	TokenOut     string      `json:"token_out" toml:"token_out"`
	MinAmountOut sdkmath.Int `json:"min_amount_out" toml:"-"`
}
