package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/elys-network/strategyvault/internal/config"
	"github.com/elys-network/strategyvault/internal/keeper"
	"github.com/elys-network/strategyvault/internal/lock"
	"github.com/elys-network/strategyvault/internal/logger"
	"github.com/elys-network/strategyvault/internal/metrics"
	"github.com/elys-network/strategyvault/internal/state"
	"github.com/elys-network/strategyvault/internal/web"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "strategyd",
		Short: "Strategy settlement and accounting engine for yield vaults.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			return nil
		},
		SilenceUsage: true,
	}
	root.Version = Version

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func migrateCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDatabaseConfig(); err != nil {
				return err
			}
			logger.Initialize(os.Getenv("LOG_LEVEL"), "")
			if config.DBHost == "" {
				return fmt.Errorf("DB_HOST is not set")
			}
			if err := state.InitDB(dbConfig()); err != nil {
				return err
			}
			defer state.CloseDB()

			if reset {
				log.Warn().Msg("Dropping all tables")
				if err := state.DropSchema(); err != nil {
					return err
				}
			}
			if err := state.EnsureSchema(); err != nil {
				return err
			}
			log.Info().Msg("Database schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop every table before recreating the schema")
	return cmd
}

func serveCmd() *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the keeper.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(); err != nil {
				return err
			}
			logger.Initialize(config.LogLevel, config.LogFile)
			log.Info().Str("version", Version).Msg("Strategy daemon starting...")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, restore)
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "resume strategy ledgers saved in the database")
	return cmd
}

func serve(ctx context.Context, restore bool) error {
	catalogue, err := config.LoadCatalogue(config.StrategyConfigPath)
	if err != nil {
		return err
	}

	opts := engineOptions{owner: config.VaultOwner}

	var recorder keeper.Recorder
	var history web.History
	if config.DBHost != "" {
		if err := state.InitDB(dbConfig()); err != nil {
			return err
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			return err
		}
		opts.store = state.NewStrategyStore()
		opts.restore = restore
		recorder = keeper.DBRecorder{}
		history = web.DBHistory{}
	} else {
		if restore {
			return fmt.Errorf("--restore needs a database")
		}
		log.Warn().Msg("DB_HOST not set, state is kept in memory only")
		mem := keeper.NewMemoryRecorder()
		recorder = mem
		history = web.MemoryHistory{Recorder: mem}
	}

	if config.RedisAddr != "" {
		redisLock, err := lock.NewRedis(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			return err
		}
		defer redisLock.Close()
		opts.locker = redisLock
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts.metrics = metrics.NewPromIndicators(registry)

	eng, err := buildEngine(ctx, catalogue, opts)
	if err != nil {
		return err
	}

	webServer, err := web.NewWebServer(web.Config{
		Port:       config.WebPort,
		Manager:    eng.registry,
		History:    history,
		Faucet:     eng.bank,
		Gatherer:   registry,
		AdminToken: config.AdminToken,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting strategy API")
		return webServer.Start(ctx)
	})

	g.Go(func() error {
		return serveHealth(ctx, config.GRPCPort)
	})

	if config.KeeperInterval > 0 {
		k, err := keeper.New(keeper.Config{
			Manager:     eng.registry,
			Recorder:    recorder,
			Metrics:     opts.metrics,
			Party:       config.KeeperParty,
			BeforeCycle: eng.tick,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			k.RunLoop(ctx, config.KeeperInterval)
			return nil
		})
	} else {
		log.Warn().Msg("KEEPER_INTERVAL is 0, keeper disabled")
	}

	err = g.Wait()
	log.Info().Msg("Strategy daemon stopped")
	return err
}

// serveHealth exposes the standard gRPC health service until ctx is done.
func serveHealth(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	log.Info().Str("port", port).Msg("Starting gRPC health service")
	return srv.Serve(lis)
}

func dbConfig() state.DBConfig {
	return state.DBConfig{
		Host:     config.DBHost,
		Port:     config.DBPort,
		User:     config.DBUser,
		Password: config.DBPassword,
		DBName:   config.DBName,
		SSLMode:  config.DBSSLMode,
	}
}
