// nomikud keeps a live, locally cached view of Nomiku sous-vide cookers.
//
// It signs in to the Tender directory, subscribes to each cooker's telemetry
// over MQTT, records state history in SQLite (and optionally InfluxDB), and
// serves a local HTTP/WebSocket API for reading state and sending commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nomiku/nomiku-go/internal/api"
	"github.com/nomiku/nomiku-go/internal/client"
	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
	"github.com/nomiku/nomiku-go/internal/infrastructure/database"
	"github.com/nomiku/nomiku-go/internal/infrastructure/influxdb"
	"github.com/nomiku/nomiku-go/internal/infrastructure/logging"
	"github.com/nomiku/nomiku-go/internal/infrastructure/mqtt"
	"github.com/nomiku/nomiku-go/internal/session"
	"github.com/nomiku/nomiku-go/internal/telemetry"
	"github.com/nomiku/nomiku-go/internal/tender"
	"github.com/nomiku/nomiku-go/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// historyRetention bounds the state_history table; older rows are
	// pruned at startup.
	historyRetention = 30 * 24 * time.Hour

	startupTimeout = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon lifecycle, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting nomikud",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Local store
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)
	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)
	if n, pruneErr := historyRepo.PruneHistory(ctx, historyRetention); pruneErr != nil {
		log.Warn("state history prune failed", "error", pruneErr)
	} else if n > 0 {
		log.Info("state history pruned", "rows", n)
	}

	// Optional time-series sink
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := session.NewMetrics()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Session
	transport := mqtt.New(cfg.MQTT)
	transport.SetLogger(log)
	directory := tender.New(cfg.Tender)

	nomiku := client.New(client.Deps{
		Transport: transport,
		Directory: directory,
		Config:    session.ConfigFrom(cfg.MQTT, cfg.Session),
		Logger:    log,
		Metrics:   metrics,
	})
	defer func() {
		log.Info("closing session")
		if closeErr := nomiku.Close(); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()

	nomiku.OnConnect(func() {
		log.Info("session connected", "client_id", transport.ClientID())
	})
	nomiku.OnClose(func() {
		log.Warn("session connection closed")
	})
	nomiku.OnError(func(err error) {
		log.Warn("session error", "error", err)
	})

	// History and telemetry
	var writer telemetry.StateWriter
	if influxClient != nil {
		writer = influxClient
	}
	recorder := telemetry.NewRecorder(historyRepo, writer, log)
	nomiku.OnEvent(recorder.Handle)
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	go recorder.Run(recorderCtx)
	defer func() {
		stopRecorder()
		recorder.Stop()
		if dropped := recorder.Dropped(); dropped > 0 {
			log.Warn("telemetry events dropped", "count", dropped)
		}
	}()

	// Local API
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Controller: nomiku,
			History:    historyRepo,
			Gatherer:   registry,
			Version:    version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("local API disabled")
	}

	// Connect
	opts := session.OptionsFrom(cfg.Tender, cfg.Session)
	if cfg.Session.UseDeviceCache && len(opts.Devices) == 0 {
		cached, listErr := deviceRepo.List(ctx)
		if listErr != nil {
			log.Warn("device cache unavailable", "error", listErr)
		} else {
			opts.Devices = cached
			log.Info("device cache loaded", "devices", len(cached))
		}
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, startupTimeout)
	defer cancelConnect()
	if connectErr := nomiku.Connect(connectCtx, opts); connectErr != nil {
		if !tender.IsRetryable(connectErr) {
			return fmt.Errorf("connecting session: %w", connectErr)
		}
		// The session keeps retrying with backoff.
		log.Warn("directory unreachable, retrying in background", "error", connectErr)
	}
	if saveErr := deviceRepo.SaveAll(ctx, nomiku.Devices()); saveErr != nil {
		log.Warn("device cache save failed", "error", saveErr)
	}
	log.Info("session started",
		"devices", len(nomiku.Devices()),
		"phase", nomiku.Phase().String(),
	)

	for _, id := range cfg.Session.Listen {
		if listenErr := nomiku.Listen(device.ID(id)); listenErr != nil {
			log.Warn("cannot listen to device", "device_id", id, "error", listenErr)
		}
	}

	if err := healthCheck(ctx, db, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// connect timeout, API, recorder, session, InfluxDB, database.
	log.Info("nomikud stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NOMIKU_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NOMIKU_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies local infrastructure. The session is not checked:
// it reconnects on its own and its state is visible on /api/v1/health.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, apiServer *api.Server) error {
	var errs []error

	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api: %w", err))
		}
	}

	return errors.Join(errs...)
}
