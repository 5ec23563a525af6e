// Gray Logic IoT - lamp and fan automation core
//
// This is the main entry point. It wires the device action engine to its
// three triggers (HTTP manual commands, the minute scheduler and MQTT motion
// events) and to its outputs (MQTT device commands, the WebSocket hub,
// notifications and InfluxDB telemetry).
//
// Usage:
//
//	graylogic-iot                      run the service
//	graylogic-iot -issue-token <id>    print a bearer token for a user and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-iot/migrations"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/api"
	"github.com/nerrad567/gray-logic-iot/internal/auth"
	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-iot/internal/motion"
	"github.com/nerrad567/gray-logic-iot/internal/notification"
	"github.com/nerrad567/gray-logic-iot/internal/retention"
	"github.com/nerrad567/gray-logic-iot/internal/scheduler"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// defaultTokenTTL is the lifetime of tokens minted with -issue-token.
const defaultTokenTTL = 24 * time.Hour

// options are the command-line flags.
type options struct {
	issueToken string
	tokenTTL   time.Duration
	out        io.Writer
}

func main() {
	opts := options{out: os.Stdout}
	flag.StringVar(&opts.issueToken, "issue-token", "", "print a bearer token for the given user id and exit")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", defaultTokenTTL, "lifetime of a token minted with -issue-token")
	flag.Parse()

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, opts options) error { //nolint:gocognit,gocyclo // linear wiring of every component
	log := logging.Default()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting Gray Logic IoT",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	users := auth.NewUserRepository(db.DB)

	if opts.issueToken != "" {
		return issueToken(ctx, users, cfg.Security.JWT.Secret, opts)
	}

	if _, seedErr := auth.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin user: %w", seedErr)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB is optional; action telemetry is skipped when disabled.
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var prom *metrics.Metrics
	if cfg.Metrics.Enabled {
		prom = metrics.New()
	}

	if healthErr := healthCheck(ctx, db, mqttClient, influxClient); healthErr != nil {
		return fmt.Errorf("health check failed: %w", healthErr)
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	// Domain services
	deviceRepo := device.NewSQLiteRepository()
	settingsRepo := automation.NewSQLiteRepository()
	historyRepo := history.NewSQLiteRepository()
	notificationRepo := notification.NewSQLiteRepository()

	registry := device.NewRegistry(db.DB, deviceRepo, settingsRepo, hub)
	registry.SetLogger(log.Component("device"))

	settings := automation.NewService(db.DB, settingsRepo, registry, mqttClient, hub, log.Component("automation"))
	settings.SetFailureRecorder(prom)

	notifications := notification.NewService(db.DB, notificationRepo, users, hub)
	notifications.SetLogger(log.Component("notification"))
	notifications.SetRecorder(prom)

	engineDeps := action.Deps{
		DB:        db.DB,
		Devices:   registry,
		DeviceDB:  deviceRepo,
		Settings:  settingsRepo,
		History:   historyRepo,
		Publisher: mqttClient,
		Hub:       hub,
		Recorder:  prom,
		Notifier:  notifications,
		Logger:    log.Component("action"),
	}
	if influxClient != nil {
		engineDeps.Telemetry = influxClient
	}
	engine := action.NewEngine(engineDeps)

	server, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Metrics:       cfg.Metrics,
		Logger:        log.Component("api"),
		DB:            db.DB,
		Hub:           hub,
		Devices:       registry,
		Actions:       engine,
		Settings:      settings,
		History:       historyRepo,
		Notifications: notifications,
		Prometheus:    prom,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	coordinator := motion.New(registry, engine, hub)
	coordinator.SetLogger(log.Component("motion"))
	coordinator.SetRecorder(prom)

	sched := scheduler.New(db.DB, settingsRepo, engine, cfg.Location())
	sched.SetLogger(log.Component("scheduler"))
	sched.SetRecorder(prom)

	sweeper := retention.New(db.DB, historyRepo, notificationRepo, cfg.Retention.Days, cfg.Retention.Schedule)
	sweeper.SetLogger(log.Component("retention"))
	sweeper.SetRecorder(prom)
	if influxClient != nil {
		sweeper.SetPointWriter(influxClient)
	}

	// Start order is the reverse of the shutdown order below.
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting retention sweeper: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		sweeper.Stop()
		return fmt.Errorf("starting scheduler: %w", err)
	}
	if err := coordinator.Start(mqttClient, byte(cfg.MQTT.QoS)); err != nil {
		sched.Stop()
		sweeper.Stop()
		return fmt.Errorf("subscribing to device topics: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		coordinator.Stop()
		sched.Stop()
		sweeper.Stop()
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"timezone", cfg.Site.Timezone,
		"retention_days", cfg.Retention.Days,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	shutdown(log, server, coordinator, sched, sweeper, engine)

	// Deferred Close() calls run next, in reverse order:
	// InfluxDB (if enabled), MQTT, database.
	log.Info("Gray Logic IoT stopped")
	return nil
}

// shutdown stops the producers of work before the sinks they write to.
func shutdown(log *logging.Logger, server *api.Server, coordinator *motion.Coordinator,
	sched *scheduler.Scheduler, sweeper *retention.Sweeper, engine *action.Engine) {
	if err := server.Close(); err != nil {
		log.Error("error stopping API server", "error", err)
	}
	coordinator.Stop()
	sched.Stop()
	sweeper.Stop()
	engine.Wait()
}

// issueToken prints a bearer token for an existing user. The service never
// issues tokens over HTTP; this is the operator path.
func issueToken(ctx context.Context, users auth.UserRepository, secret string, opts options) error {
	user, err := users.GetByID(ctx, opts.issueToken)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return fmt.Errorf("no user with id %q", opts.issueToken)
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	token, err := auth.GenerateAccessToken(user, secret, opts.tokenTTL)
	if err != nil {
		return err
	}

	out := opts.out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
