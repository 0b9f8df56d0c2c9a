package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile, when set, receives a copy of every log line.
	LogFile string

	// VaultOwner is the bookkeeping identity that owns every strategy: only it may mint shares,
	// claim realized assets and trigger emergency exits.
	VaultOwner string
	// KeeperParty is the identity the keeper compounds under.
	KeeperParty string
	// KeeperInterval is the time between harvest cycles. Zero disables the keeper.
	KeeperInterval time.Duration

	// StrategyConfigPath points at the TOML strategy catalogue.
	StrategyConfigPath string

	// AdminToken guards emergency exits and the faucet on the HTTP API.
	AdminToken string

	// LockTTL bounds how long a crashed process can hold a strategy lock.
	LockTTL time.Duration
	// LockWait is how long a caller waits for a busy strategy.
	LockWait time.Duration

	// Database settings. Persistence is disabled when DBHost is empty.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// VAULT_OWNER and STRATEGY_CONFIG_PATH are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultOwner, err = getEnv("VAULT_OWNER")
	if err != nil {
		return err
	}

	StrategyConfigPath, err = getEnv("STRATEGY_CONFIG_PATH")
	if err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", DefaultLogLevel)
	LogFile = getEnvOrDefault("LOG_FILE", "")
	KeeperParty = getEnvOrDefault("KEEPER_PARTY", DefaultKeeperParty)
	AdminToken = getEnvOrDefault("ADMIN_TOKEN", "")

	KeeperInterval, err = getEnvAsDuration("KEEPER_INTERVAL", DefaultKeeperInterval)
	if err != nil {
		return err
	}

	LockTTL, err = getEnvAsDuration("LOCK_TTL", DefaultLockTTL)
	if err != nil {
		return err
	}

	LockWait, err = getEnvAsDuration("LOCK_WAIT", DefaultLockWait)
	if err != nil {
		return err
	}

	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultOwner", VaultOwner).
		Str("KeeperParty", KeeperParty).
		Dur("KeeperInterval", KeeperInterval).
		Str("StrategyConfigPath", StrategyConfigPath).
		Bool("Persistence", DBHost != "").
		Msg("Configuration loaded successfully.")

	return nil
}

// LoadDatabaseConfig loads only the database settings, for tools that need nothing else.
func LoadDatabaseConfig() error {
	return loadDatabaseConfig()
}

func loadDatabaseConfig() error {
	DBHost = getEnvOrDefault("DB_HOST", "")
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", DefaultDBSSLMode)

	var err error
	DBPort, err = getEnvAsInt("DB_PORT", DefaultDBPort)
	if err != nil {
		return err
	}
	if DBHost != "" && (DBUser == "" || DBName == "") {
		return errors.New("DB_USER and DB_NAME are required when DB_HOST is set")
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if invalid.
func getEnvAsInt(key string, def int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration (e.g. "10m"). Returns error if invalid.
func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
