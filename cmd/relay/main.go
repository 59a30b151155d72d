// Command relay runs a lay relay.
//
// # Configuration File
//
//	http_addr: ":8080"
//	metrics_addr: ":9090"
//	server_id: "relay-1"
//	channel_filter: false
//	cors_origins: ["https://chat.example"]
//	store:
//	  driver: sqlite        # sqlite | postgres | memory
//	  dsn: /var/lib/lay/lay.db
//	log:
//	  level: info
//	  json: false
//
// LAY_* environment variables and DATABASE_URL override the file, flags
// override both.
//
// # Usage
//
//	go run ./cmd/relay --config=relay.yaml
//	go run ./cmd/relay --addr=:8080 --store=postgres --dsn=postgres://localhost/lay
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/lay/api/httpserver"
	"github.com/flashbots/lay/cmd/common"
	"github.com/flashbots/lay/relay"
	"github.com/flashbots/lay/storage"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		addr          = flag.String("addr", "", "HTTP listen address")
		metricsAddr   = flag.String("metrics-addr", "", "Metrics listen address (disabled when empty)")
		serverID      = flag.String("server-id", "", "Origin identifier of this relay")
		storeDriver   = flag.String("store", "", "Store driver: sqlite, postgres or memory")
		dsn           = flag.String("dsn", "", "SQLite path or PostgreSQL connection string")
		channelFilter = flag.Bool("channel-filter", false, "Only return posts from the requested channel")
		logLevel      = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logJSON       = flag.Bool("log-json", false, "Log in JSON format")
		pprof         = flag.Bool("pprof", false, "Enable /debug/pprof")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := common.LoadRelayConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *serverID != "" {
		cfg.ServerID = *serverID
	}
	if *storeDriver != "" {
		cfg.Store.Driver = *storeDriver
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}
	if isFlagSet("channel-filter") {
		cfg.ChannelFilter = *channelFilter
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if isFlagSet("log-json") {
		cfg.Log.JSON = *logJSON
	}
	if isFlagSet("pprof") {
		cfg.EnablePprof = *pprof
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *common.RelayConfig) error {
	log, err := common.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	r := relay.New(store, relay.Options{
		ServerID:      cfg.ServerID,
		ChannelFilter: cfg.ChannelFilter,
	}, log)
	handler := relay.NewHandler(r, relay.HandlerConfig{
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,
	})

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		MetricsNamespace:         common.PackageName,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		ReadinessCheck:           store.Ping,
		DrainDuration:            cfg.DrainDuration,
		GracefulShutdownDuration: cfg.GracefulShutdownDuration,
		ReadTimeout:              cfg.ReadTimeout,
		WriteTimeout:             cfg.WriteTimeout,
	}, handler)
	if err != nil {
		return err
	}

	log.Info("relay starting",
		"addr", cfg.HTTPAddr,
		"store", cfg.Store.Driver,
		"serverID", cfg.ServerID,
		"channelFilter", cfg.ChannelFilter)
	srv.RunInBackground()

	<-ctx.Done()
	log.Info("shutting down", "drainDuration", cfg.DrainDuration)
	<-srv.Drain()
	srv.Shutdown()
	return nil
}
