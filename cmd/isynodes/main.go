// isynodes keeps a live registry of an ISY home-automation controller's
// node tree.
//
// It loads the controller's folders, groups and nodes, tracks node status
// from periodic snapshots and the controller's event stream, and fans every
// status change out to MQTT, InfluxDB, SQLite history and the HTTP/WebSocket
// API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	_ "github.com/nerrad567/gray-logic-isy/migrations"

	"github.com/nerrad567/gray-logic-isy/internal/api"
	"github.com/nerrad567/gray-logic-isy/internal/bridges/isy"
	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-isy/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-isy/internal/nodes"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "ISYNODES_CONFIG"

	// historyPruneInterval is how often old status history rows are removed.
	historyPruneInterval = time.Hour
)

const usage = `isynodes - ISY node tree bridge.

Usage:
    isynodes [--config=<path>] [--print-tree]
    isynodes [--config=<path>] --migrate-down
    isynodes -h | --help
    isynodes --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    Configuration file (falls back to $ISYNODES_CONFIG, then configs/config.yaml).
    --print-tree       Load the node tree, print its outline and exit.
    --migrate-down     Roll back the newest database migration and exit.`

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath  string
	printTree   bool
	migrateDown bool
}

func main() {
	opts, err := parseArgs(&docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs parses argv against the usage string.
func parseArgs(parser *docopt.Parser, argv []string) (cliOptions, error) {
	args, err := parser.ParseArgs(usage, argv, version)
	if err != nil {
		return cliOptions{}, fmt.Errorf("parsing arguments: %w", err)
	}

	var opts cliOptions
	if path, err := args.String("--config"); err == nil {
		opts.configPath = path
	}
	opts.printTree, _ = args.Bool("--print-tree")
	opts.migrateDown, _ = args.Bool("--migrate-down")
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command line
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts cliOptions) error {
	log := logging.Default()

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)

	client, err := isy.NewClient(cfg.Controller)
	if err != nil {
		return fmt.Errorf("creating controller client: %w", err)
	}

	if opts.printTree {
		return printTree(ctx, client, os.Stdout, log)
	}

	log.Info("starting isynodes",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.migrateDown {
		return rollbackMigration(ctx, db, log)
	}

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	history := nodes.NewSQLiteStatusHistoryRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	bridge, err := newBridge(cfg, client, mqttClient, influxClient, history, hub, log)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Load(ctx); err != nil {
		return fmt.Errorf("loading node tree: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Registry: bridge.Registry(),
		History:  history,
		Bridge:   bridge,
		Hub:      hub,
		DB:       db,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if retention := cfg.Database.GetHistoryRetention(); retention > 0 {
		go pruneHistoryLoop(ctx, history, retention, historyPruneInterval, log)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// newBridge wires the controller bridge to whichever sinks are enabled.
// Disabled sinks stay nil interfaces so the bridge skips them.
func newBridge(
	cfg *config.Config,
	client *isy.Client,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	history *nodes.SQLiteStatusHistoryRepository,
	hub *api.Hub,
	log *logging.Logger,
) (*isy.Bridge, error) {
	opts := isy.Options{
		ControllerID:   cfg.Controller.ID,
		Version:        version,
		Address:        cfg.Controller.BaseURL(),
		Controller:     client,
		History:        history,
		Hub:            hub,
		Logger:         log.Component("bridge"),
		PollInterval:   cfg.Controller.GetPollInterval(),
		PollWait:       cfg.Controller.GetPollWait(),
		HealthInterval: cfg.Controller.GetHealthInterval(),
	}

	if cfg.Controller.EventStream {
		opts.Events = isy.NewEventStream(client, log.Component("eventstream"))
	}
	if mqttClient != nil {
		opts.MQTT = &mqttBridgeAdapter{client: mqttClient}
		opts.EventRelay = cfg.Controller.EventRelay
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	return isy.NewBridge(opts)
}

// rollbackMigration reverts the newest applied migration, e.g. the status
// history table, before a downgrade.
func rollbackMigration(ctx context.Context, db *database.DB, log *logging.Logger) error {
	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(applied) == 0 {
		log.Info("no migrations to roll back")
		return nil
	}

	latest := applied[len(applied)-1].Version
	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration %s: %w", latest, err)
	}
	log.Info("migration rolled back", "version", latest)
	return nil
}

// getConfigPath returns the configuration file path: the --config flag,
// then ISYNODES_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// nodeSource fetches the controller's configuration payload.
type nodeSource interface {
	FetchNodes(ctx context.Context) ([]byte, error)
}

// printTree loads the node tree once and writes its outline to w.
func printTree(ctx context.Context, src nodeSource, w io.Writer, log *logging.Logger) error {
	data, err := src.FetchNodes(ctx)
	if err != nil {
		return fmt.Errorf("fetching node configuration: %w", err)
	}

	registry := nodes.NewRegistry(nil, log)
	if err := registry.Parse(data); err != nil {
		return fmt.Errorf("loading node configuration: %w", err)
	}

	if _, err := io.WriteString(w, registry.Root().Outline()); err != nil {
		return fmt.Errorf("writing outline: %w", err)
	}
	return nil
}

// historyPruner removes status history older than a cutoff.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistoryLoop prunes immediately, then every interval until ctx ends.
func pruneHistoryLoop(ctx context.Context, pruner historyPruner, retention, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		removed, err := pruner.PruneHistory(ctx, retention)
		switch {
		case err != nil:
			log.Warn("status history prune failed", "error", err)
		case removed > 0:
			log.Info("status history pruned", "removed", removed, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The only difference is the Subscribe handler
// signature:
//   - infrastructure mqtt: func(topic, payload []byte) error
//   - isy bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// PublishJSON implements isy.MQTTClient.
func (a *mqttBridgeAdapter) PublishJSON(topic string, v any, retained bool) error {
	return a.client.PublishJSON(topic, v, retained)
}

// Subscribe implements isy.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements isy.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
