package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/MrSnakeDoc/vigil/internal/config"
	"github.com/MrSnakeDoc/vigil/internal/etcd"
	"github.com/MrSnakeDoc/vigil/internal/httpserver"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
	"github.com/MrSnakeDoc/vigil/internal/scheduler"
	"github.com/MrSnakeDoc/vigil/internal/sources/descriptor"
	etcdstore "github.com/MrSnakeDoc/vigil/internal/store/etcd"
	"github.com/MrSnakeDoc/vigil/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	etcdClient  *clientv3.Client
	registry    *registry.Registry
	heartbeater *scheduler.Heartbeater
	sweeper     *scheduler.Sweeper
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Connect to etcd early - fail fast if unavailable
	loggerClient.Infof("Connecting to etcd at %s", cfg.EtcdEndpoint())
	etcdClient, err := etcd.New(etcd.ConnectOptions{
		Endpoints:      []string{cfg.EtcdEndpoint()},
		DialTimeout:    cfg.EtcdDialTimeout,
		ConnectTimeout: cfg.EtcdConnectTimeout,
		RetryInterval:  cfg.EtcdRetryInterval,
		MaxWait:        cfg.EtcdMaxWait,
		StatusTimeout:  cfg.EtcdStatusTimeout,
		WarnThreshold:  cfg.EtcdWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to etcd: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("etcd initialized successfully")

	// Store adapter, key layout, registry engine
	store := etcdstore.NewStore(etcdClient, cfg.EtcdOpTimeout)
	keys := registry.NewKeyspace(cfg.Namespace)
	reg := registry.New(store, keys, registry.JSONCodec{}, cfg.StatusTTL, loggerClient)

	// Built-in agent: register this node's own record and keep it alive
	var heartbeater *scheduler.Heartbeater
	var heartbeatTrigger chan struct{}
	var agentID string
	if cfg.AgentEnabled() {
		desc, err := descriptor.NewLoader(cfg.ServiceFile).Load()
		if err != nil {
			loggerClient.Errorf("Failed to load service descriptor: %v", err)
			os.Exit(1)
		}
		heartbeatTrigger = make(chan struct{}, 1)
		heartbeater = scheduler.NewHeartbeater(
			reg,
			desc.Record(),
			loggerClient,
			cfg.HeartbeatInterval,
			heartbeatTrigger,
		)
		agentID = desc.ID
		loggerClient.Info("agent record loaded",
			logger.String("id", desc.ID),
			logger.String("kind", desc.Kind),
			logger.String("host", desc.Host))
	} else {
		loggerClient.Info("service descriptor not configured, agent mode disabled")
	}

	// Initialize stale pointer sweeper
	sweeper := scheduler.NewSweeper(reg, loggerClient, cfg.SweepInterval)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		TimeNow:          time.Now,
		AllowedHosts:     cfg.AllowedHosts,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		Registry:         reg,
		Store:            store,
		Keyspace:         keys,
		Codec:            registry.JSONCodec{},
		AgentID:          agentID,
		HeartbeatTrigger: heartbeatTrigger,
		RateBurst:        cfg.RateBurst,
		RateRefillMin:    cfg.RateRefillMin,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		etcdClient:  etcdClient,
		registry:    reg,
		heartbeater: heartbeater,
		sweeper:     sweeper,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Vigil v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Vigil %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start heartbeater (registers this node's record and keeps renewing it)
	if a.heartbeater != nil {
		if err := a.heartbeater.Start(ctx); err != nil {
			return fmt.Errorf("failed to start heartbeater: %w", err)
		}
		a.logger.Info("heartbeater started",
			logger.String("id", a.heartbeater.ID()),
			logger.Duration("interval", a.cfg.HeartbeatInterval))
	}

	// Start stale pointer sweeper
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	a.logger.Info("sweeper started",
		logger.Duration("interval", a.cfg.SweepInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	// Stop heartbeater first; the record is left to expire on its own so a
	// clean stop and a crash look the same to consumers
	if a.heartbeater != nil {
		a.heartbeater.Stop()
	}

	// Stop sweeper
	a.sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.etcdClient != nil {
		if err := a.etcdClient.Close(); err != nil {
			a.logger.Warnf("failed to close etcd client: %v", err)
		} else {
			a.logger.Info("✅ etcd client closed cleanly")
		}
	}

	a.logger.Info("✅ Vigil stopped cleanly")
	return nil
}
