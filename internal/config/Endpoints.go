package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the HTTP API.
	WebPort string
	// GRPCPort is the port of the gRPC health service.
	GRPCPort string
	// RedisAddr enables the distributed strategy lock when set.
	RedisAddr string
	// RedisPassword is the password for RedisAddr, if any.
	RedisPassword string
	// RedisDB is the logical Redis database.
	RedisDB int
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", DefaultWebPort)
	GRPCPort = getEnvOrDefault("GRPC_PORT", DefaultGRPCPort)
	RedisAddr = getEnvOrDefault("REDIS_ADDR", "")
	RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")

	var err error
	RedisDB, err = getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return err
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("GRPCPort", GRPCPort).
		Str("RedisAddr", RedisAddr).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
