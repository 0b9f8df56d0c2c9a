/*

This file contains the asset types shared by strategies, the price feed and the simulated venues.

*/

package types

import (
	"fmt"
	"strings"
)

// Token describes an asset a strategy can hold.
type Token struct {
	Symbol   string `json:"symbol" toml:"symbol"`     // e.g., "USDC"
	Denom    string `json:"denom" toml:"denom"`       // e.g., "uusdc"
	Decimals int    `json:"decimals" toml:"decimals"` // e.g., 6 means 1000000 base units = 1 token
}

// AssetGroup is the ordered list of denoms a strategy accepts and returns.
// Exchange-rate vectors and deposit amounts are aligned positionally with it.
type AssetGroup []string

// Validate checks that the group is non-empty and free of blanks and duplicates.
func (g AssetGroup) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("asset group is empty")
	}
	seen := make(map[string]struct{}, len(g))
	for i, denom := range g {
		if strings.TrimSpace(denom) == "" {
			return fmt.Errorf("asset group entry %d is blank", i)
		}
		if _, ok := seen[denom]; ok {
			return fmt.Errorf("asset group contains %s twice", denom)
		}
		seen[denom] = struct{}{}
	}
	return nil
}

// Contains reports whether denom belongs to the group.
func (g AssetGroup) Contains(denom string) bool {
	return g.IndexOf(denom) >= 0
}

// IndexOf returns the position of denom in the group or -1.
func (g AssetGroup) IndexOf(denom string) int {
	for i, d := range g {
		if d == denom {
			return i
		}
	}
	return -1
}

// Equal reports whether assets lists exactly the group's denoms in order.
func (g AssetGroup) Equal(assets []string) bool {
	if len(assets) != len(g) {
		return false
	}
	for i := range g {
		if g[i] != assets[i] {
			return false
		}
	}
	return true
}
