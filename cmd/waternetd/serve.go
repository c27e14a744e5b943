package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-waternet/pkg/api"
	"github.com/dd0wney/cluso-waternet/pkg/api/middleware"
	"github.com/dd0wney/cluso-waternet/pkg/archive"
	"github.com/dd0wney/cluso-waternet/pkg/config"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/health"
	"github.com/dd0wney/cluso-waternet/pkg/journal"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/metrics"
	"github.com/dd0wney/cluso-waternet/pkg/pubsub"
	"github.com/dd0wney/cluso-waternet/pkg/server"
	"github.com/dd0wney/cluso-waternet/pkg/snapshot"
	wtls "github.com/dd0wney/cluso-waternet/pkg/tls"
)

const (
	dependencyTimeout = 2 * time.Second
	certExpiryWarning = 14 * 24 * time.Hour
)

func newServeCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analytics engine and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfgFile)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML); WATERNET_* env vars override it")
	return cmd
}

func runServe(ctx context.Context, cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogOptions())
	defer logger.Sync()
	logging.SetDefaultLogger(logger)
	logger.Info("waternetd starting", logging.String("version", Version), logging.Int("port", cfg.Server.Port))

	reg := metrics.NewRegistry()
	hc := health.NewHealthChecker()
	opts := []engine.Option{engine.WithLogger(logger), engine.WithMetrics(reg)}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Dir,
			journal.WithCompression(cfg.Journal.Compress),
			journal.WithLogger(logger),
			journal.WithMetrics(reg))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		opts = append(opts, engine.WithJournal(j))
		hc.RegisterReadinessCheck("journal", health.JournalCheck(j.Err))
	}

	if cfg.Archive.DatabaseURL != "" {
		store, err := archive.Open(ctx, cfg.Archive.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		opts = append(opts, engine.WithArchiver(store))
		hc.RegisterCheck("archive", health.DependencyCheck("archive", dependencyTimeout, store.Ping))
	}

	if cfg.Snapshot.RedisAddr != "" {
		cache, err := snapshot.Dial(ctx, cfg.Snapshot.RedisAddr, cfg.Snapshot.RedisPassword, cfg.Snapshot.RedisDB,
			snapshot.WithTTL(cfg.Snapshot.TTL),
			snapshot.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("dial snapshot cache: %w", err)
		}
		defer cache.Close()
		opts = append(opts, engine.WithSnapshots(cache))
		hc.RegisterCheck("snapshot", health.DependencyCheck("snapshot", dependencyTimeout, cache.Ping))
	}

	eng, err := engine.New(cfg.EngineConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	registerEngineChecks(hc, eng)

	apiOpts := api.Options{
		Logger:         logger,
		Metrics:        reg,
		Health:         hc,
		TrustedProxies: cfg.Server.TrustedProxies,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Version:        Version,
	}
	if cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RPS
		rl.BurstSize = cfg.RateLimit.Burst
		apiOpts.RateLimit = rl
	}
	srv, err := api.NewServer(eng, apiOpts)
	if err != nil {
		return fmt.Errorf("create api: %w", err)
	}
	defer srv.Close()

	tlsConfig, certs, err := wtls.ServerConfig(cfg.TLSOptions())
	if err != nil {
		return fmt.Errorf("configure tls: %w", err)
	}
	if certs != nil {
		hc.RegisterCheck("tls", health.CertificateCheck(func() time.Duration {
			return certs.Info().ExpiresIn(time.Now())
		}, certExpiryWarning))
	}

	gs := server.NewGracefulServer(fmt.Sprintf(":%d", cfg.Server.Port), srv.Handler(), server.Options{
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
		TLSConfig:       tlsConfig,
	})
	gs.SetConfigReloadFunc(reloadFunc(cfgFile, eng, certs, logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Start(ctx) })
	g.Go(func() error { return gs.Run(ctx) })

	if cfg.Events.NNGPublishAddr != "" {
		bridge, err := pubsub.NewBridge(eng.Bus(), cfg.Events.NNGPublishAddr, logger)
		if err != nil {
			return fmt.Errorf("start event bridge: %w", err)
		}
		defer bridge.Close()
		g.Go(func() error { return bridge.Run(ctx, pubsub.AllTopics...) })
	}

	err = g.Wait()
	logger.Info("waternetd stopped", logging.Duration("uptime", eng.Uptime()))
	return err
}

func registerEngineChecks(hc *health.HealthChecker, eng *engine.Engine) {
	hc.RegisterReadinessCheck("engine", health.ReadyCheck(eng.Ready))
	hc.RegisterCheck("ingest_queue", health.QueueCheck(eng.QueueDepth))
	hc.RegisterCheck("integrity", health.IntegrityCheck(func() (bool, string) {
		st := eng.Zones().Stats()
		return st.Halted, st.HaltReason
	}))
	hc.RegisterLivenessCheck("memory", health.MemoryCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))
}

// reloadFunc re-reads the config file on SIGHUP. Only the alert expiry
// policy, the loss cost, the log level and the TLS key pair change at
// runtime.
func reloadFunc(cfgFile string, eng *engine.Engine, certs *wtls.Reloader, logger *logging.ZapLogger) server.ConfigReloadFunc {
	return func() error {
		next, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if certs != nil {
			if err := certs.Reload(); err != nil {
				return err
			}
		}
		eng.Alerts().SetExpiryPolicy(next.ExpiryPolicy())
		eng.NRW().SetCostPerM3(next.Engine.CostPerM3)
		logger.SetLevel(logging.ParseLevel(next.Log.Level))
		return nil
	}
}
