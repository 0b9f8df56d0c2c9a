package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/strategyvault/internal/config"
	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/state"
)

func main() {
	startCycle := flag.Int("start-cycle", 0, "cycle number the keeper continues from")
	flag.Parse()

	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel, "")
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	if err := config.LoadDatabaseConfig(); err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if config.DBHost == "" {
		config.DBHost = "localhost"
	}
	if config.DBUser == "" || config.DBName == "" {
		log.Fatal().Msg("DB_USER and DB_NAME environment variables must be set.")
	}

	dbCfg := state.DBConfig{
		Host:     config.DBHost,
		Port:     config.DBPort,
		User:     config.DBUser,
		Password: config.DBPassword,
		DBName:   config.DBName,
		SSLMode:  config.DBSSLMode,
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	if *startCycle > 0 {
		if err := state.ResetCycleNumber(context.Background(), *startCycle); err != nil {
			log.Fatal().Err(err).Msg("Failed to set cycle counter")
		}
		log.Info().Int("cycle", *startCycle).Msg("Cycle counter set")
	}

	log.Info().Msg("Database reset complete!")
}
