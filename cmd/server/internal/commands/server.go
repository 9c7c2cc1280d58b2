package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/fluxkit/accountvendor/internal/guardrail"
	"github.com/fluxkit/accountvendor/internal/httpapi"
	"github.com/fluxkit/accountvendor/internal/logger"
	"github.com/fluxkit/accountvendor/internal/orgs"
	"github.com/fluxkit/accountvendor/internal/provisioner"
	"github.com/fluxkit/accountvendor/internal/store"
	memorystore "github.com/fluxkit/accountvendor/internal/store/memory"
	postgresstore "github.com/fluxkit/accountvendor/internal/store/postgres"
	"github.com/fluxkit/accountvendor/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"ACCOUNTVENDOR_LISTEN"`

	// Worker configuration
	WorkerInterval time.Duration `help:"delay between reconciliation ticks" default:"2s" env:"ACCOUNTVENDOR_WORKER_INTERVAL"`
	PollBackoff    time.Duration `help:"initial poll backoff for in-flight external operations (0 disables pacing)" default:"0" env:"ACCOUNTVENDOR_POLL_BACKOFF"`
	PollBackoffMax time.Duration `help:"maximum poll backoff" default:"1m" env:"ACCOUNTVENDOR_POLL_BACKOFF_MAX"`

	// Organization client configuration
	OrgClient        string        `help:"organization client (simulated or aws)" default:"simulated" env:"ACCOUNTVENDOR_ORG_CLIENT" enum:"simulated,aws"`
	SimulatedLatency time.Duration `help:"simulated account-creation latency" default:"4s" env:"ACCOUNTVENDOR_SIMULATED_LATENCY"`

	// Guardrail cluster configuration
	GuardrailPolls int `help:"polls before a simulated guardrail claim syncs" default:"2" env:"ACCOUNTVENDOR_GUARDRAIL_POLLS"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"ACCOUNTVENDOR_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"ACCOUNTVENDOR_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ACCOUNTVENDOR_POSTGRES_AUTO_MIGRATE"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting account vendor")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "accountvendor-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	var requestStore store.AccountRequestStore

	switch c.StoreType {
	case "postgres":
		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		requestStore = postgresstore.NewAccountRequestStore(pool)
		log.Info().Msg("Using PostgreSQL account request store")

	default:
		requestStore = memorystore.NewAccountRequestStore()
		log.Info().Msg("Using in-memory account request store")
	}

	var orgClient orgs.Client

	switch c.OrgClient {
	case "aws":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		orgClient = orgs.NewAWSClient(awsCfg)
		log.Info().Msg("Using AWS Organizations client")

	default:
		orgClient = orgs.NewSimulatedClient(orgs.WithLatency(c.SimulatedLatency))
		log.Info().Dur("latency", c.SimulatedLatency).Msg("Using simulated organization client")
	}

	guardrailClient := guardrail.NewFakeClusterClient(guardrail.WithPollsUntilSynced(c.GuardrailPolls))

	workerOpts := []provisioner.Option{
		provisioner.WithInterval(c.WorkerInterval),
		provisioner.WithMetrics(telemetry.GetMetrics()),
	}
	if c.PollBackoff > 0 {
		workerOpts = append(workerOpts, provisioner.WithPollBackoff(c.PollBackoff, c.PollBackoffMax))
	}

	worker := provisioner.New(requestStore, orgClient, guardrailClient, workerOpts...)
	worker.Start()
	defer worker.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "accountvendor " + globals.Version,
		DisableStartupMessage: true,
	})
	app.Use(requestid.New())
	app.Use(logger.NewRequestLogger(log))

	httpapi.New(requestStore, guardrailClient).SetupRoutes(app)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(c.Listen)
	}()

	log.Info().Str("addr", c.Listen).Msg("HTTP server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return nil
}
