package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/x402hub/paygate/internal/bindings"
	"github.com/x402hub/paygate/internal/config"
	"github.com/x402hub/paygate/internal/forwarder"
	"github.com/x402hub/paygate/internal/gate"
	"github.com/x402hub/paygate/internal/httpserver"
	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/payment"
	"github.com/x402hub/paygate/internal/recorder"
	"github.com/x402hub/paygate/internal/redis"
	"github.com/x402hub/paygate/internal/scheduler"
	"github.com/x402hub/paygate/internal/sources/patterns"
	"github.com/x402hub/paygate/internal/store/postgres"
	redisstore "github.com/x402hub/paygate/internal/store/redis"
	"github.com/x402hub/paygate/internal/tenant"
	"github.com/x402hub/paygate/internal/version"
)

type App struct {
	cfg              *config.Config
	logger           logger.Logger
	server           *httpserver.Server
	redisClient      *goredis.Client
	pool             *pgxpool.Pool
	recorder         *recorder.AsyncRecorder
	patternsReloader *scheduler.PatternsReloader
	usageGC          *scheduler.UsageGC
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	// Postgres: the durable tenant/route/usage store
	ctx := context.Background()
	if cfg.PostgresMigrate {
		if err := postgres.RunMigrations(ctx, cfg.PostgresDSN); err != nil {
			loggerClient.Errorf("Failed to run migrations: %v", err)
			os.Exit(1)
		}
		loggerClient.Info("database migrations applied")
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Postgres: %v", err)
		os.Exit(1)
	}
	pg := postgres.NewStore(pool)

	// Tenant config cache (cache-aside over the durable store)
	cache := redisstore.NewStore(redisClient)
	resolver := tenant.NewResolver(cache, pg, cfg.CacheTTL, loggerClient)

	// Payment gate and verifier
	verifier := payment.NewFacilitatorVerifier(loggerClient)
	paymentGate := gate.New(verifier, cfg.CredentialTTL, loggerClient)

	// Origin forwarding
	registry := bindings.NewRegistry()
	fwd := forwarder.New(registry, cfg.OriginService, cfg.OriginURL, loggerClient)

	// Async usage recorder
	rec := recorder.NewAsyncRecorder(pg, loggerClient, cfg.RecorderBuffer)

	// Usage log retention
	usageGC := scheduler.NewUsageGC(pg, loggerClient, cfg.UsageGCInterval, cfg.UsageRetention)

	// Single-tenant protected patterns (optional)
	var patternSet *patterns.Set
	var patternsReloader *scheduler.PatternsReloader
	if cfg.PatternsFile != "" {
		loggerClient.Info("patterns file configured, initializing reloader",
			logger.String("file", cfg.PatternsFile))
		patternSet = patterns.NewSet()
		patternsReloader = scheduler.NewPatternsReloader(
			cfg.PatternsFile,
			patternSet,
			loggerClient,
			cfg.ReloadInterval,
		)
	} else {
		loggerClient.Info("patterns file not configured, single-tenant rules disabled")
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		PlatformHosts:  cfg.PlatformHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		RedisClient:    redisClient,
		PG:             pg,
		Resolver:       resolver,
		Gate:           paymentGate,
		Forwarder:      fwd,
		Recorder:       rec,
		Patterns:       patternSet,
		Reloader:       patternsReloader,
		LocalSuffixes:  cfg.LocalSuffixes,
		PayTo:          cfg.PayTo,
		Network:        cfg.Network,
		FacilitatorURL: cfg.FacilitatorURL,
		JWTSecret:      cfg.JWTSecret,
		OriginURL:      cfg.OriginURL,
		OriginService:  cfg.OriginService,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:              cfg,
		logger:           loggerClient,
		server:           server,
		redisClient:      redisClient,
		pool:             pool,
		recorder:         rec,
		patternsReloader: patternsReloader,
		usageGC:          usageGC,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting paygate v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("paygate %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start usage recorder worker
	if err := a.recorder.Start(ctx); err != nil {
		return fmt.Errorf("failed to start usage recorder: %w", err)
	}
	a.logger.Info("usage recorder started")

	// Start patterns reloader (if enabled)
	if a.patternsReloader != nil {
		if err := a.patternsReloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start patterns reloader: %w", err)
		}
		a.logger.Info("patterns reloader started",
			logger.Duration("interval", a.cfg.ReloadInterval))
	}

	// Start usage log retention pruning
	if err := a.usageGC.Start(ctx); err != nil {
		return fmt.Errorf("failed to start usage log pruning: %w", err)
	}

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

	// Stop background schedulers
	if a.patternsReloader != nil {
		a.patternsReloader.Stop()
	}
	a.usageGC.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Stop the recorder after the server so in-flight requests can still
	// enqueue their usage entries; Stop drains the buffer.
	a.recorder.Stop()

	if a.pool != nil {
		a.pool.Close()
		a.logger.Info("✅ Postgres pool closed cleanly")
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ paygate stopped cleanly")
	return nil
}
