/*

This file contains the default parameters for the strategy daemon.

*/

package config

import (
	"time"
)

const (
	DefaultLogLevel    = "info"
	DefaultKeeperParty = "keeper"
	// Harvesting more often than this mostly measures venue noise.
	DefaultKeeperInterval = 10 * time.Minute

	DefaultWebPort  = "8080"
	DefaultGRPCPort = "9090"

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "disable"

	DefaultLockTTL  = 2 * time.Minute
	DefaultLockWait = 10 * time.Second

	// DefaultYieldLimit bounds manual yield attestations at +/-10% per cycle, in YieldFullPercent units.
	DefaultYieldLimit = "100000000000"
	// DefaultRouterName is the venue name swap instructions refer to.
	DefaultRouterName = "router"
)
