package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yohannes916/mismartera-sub001/internal/analysis"
	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	"github.com/yohannes916/mismartera-sub001/internal/config"
	"github.com/yohannes916/mismartera-sub001/internal/coordinator"
	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/provisioning"
	"github.com/yohannes916/mismartera-sub001/internal/quality"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/system"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// main wires one session-engine process: a single Coordinator, its
// workers, and the SystemManager HTTP surface, following the teacher's
// cmd/scanner/main.go wiring order (config -> logger -> Redis/DB clients
// -> domain components -> HTTP server goroutine -> signal-based graceful
// shutdown).
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting session engine",
		logger.Int("port", cfg.System.Port),
		logger.Int("health_port", cfg.System.HealthCheckPort),
		logger.String("session_config_path", cfg.System.SessionConfigPath),
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	repo, err := barrepo.NewTimescaleRepository(cfg.Database, barrepo.WriteConfig{
		QueueSize:  1000,
		MaxRetries: 3,
		RetryDelay: time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to timescale", logger.ErrorField(err))
	}
	defer repo.Close()

	sessionCfg, err := loadSessionConfig(cfg.System.SessionConfigPath)
	if err != nil {
		logger.Fatal("failed to load session config", logger.ErrorField(err))
	}

	readyMode, err := coordinator.ResolveReadyMode(sessionCfg)
	if err != nil {
		logger.Fatal("invalid session config mode", logger.ErrorField(err))
	}

	store := sessiondata.New()
	cal, err := calendar.NewNYSEService()
	if err != nil {
		logger.Fatal("failed to load exchange calendar", logger.ErrorField(err))
	}
	catalog := indicatorcatalog.New()

	sdc := sessionCfg.SessionDataConfig

	proc, err := processor.New(store, catalog, processor.Config{
		BaseInterval:     sdc.BaseInterval,
		DerivedIntervals: sdc.DerivedIntervals,
		Indicators:       sdc.Indicators,
	}, readyMode)
	if err != nil {
		logger.Fatal("failed to construct processor", logger.ErrorField(err))
	}

	qm := quality.New(store, repo, cal, sessionCfg.ExchangeGroup, sdc.GapFiller, redisClient)

	strategies := analysis.NewStrategyManager(store, readyMode, time.Duration(sdc.Streaming.ReadyTimeout))
	scanners := analysis.NewScannerManager()
	engine := analysis.New(strategies, scanners, readyMode)
	proc.SetAnalysisSubscription(engine.Subscription())

	prov := provisioning.New(store, repo, cal, catalog, provisioning.Config{
		BaseInterval:     sdc.BaseInterval,
		DerivedIntervals: sdc.DerivedIntervals,
		TrailingDays:     sdc.Historical.TrailingDays,
		WarmupDays:       sdc.Historical.WarmupDays,
		Exchange:         sessionCfg.ExchangeGroup,
	}, redisClient)

	coord := coordinator.New(coordinator.Deps{
		Store: store, Repo: repo, Calendar: cal,
		Processor: proc, Quality: qm, Engine: engine, Provisioner: prov,
	})

	if err := coord.StartWithConfig(context.Background(), sessionCfg); err != nil {
		logger.Fatal("failed to start session", logger.ErrorField(err))
	}

	sysManager := system.New(coord, repo, cfg.System)
	httpServer := sysManager.Serve()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("session engine HTTP surface listening", logger.Int("port", cfg.System.Port))
		if err := httpServer.ListenAndServe(); err != nil {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down session engine", logger.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("HTTP surface failed", logger.ErrorField(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP surface shutdown failed", logger.ErrorField(err))
	}

	if err := coord.Stop(); err != nil {
		logger.Error("session stop failed", logger.ErrorField(err))
	}

	logger.Info("session engine stopped")
}

// loadSessionConfig decodes the per-session trading configuration (the
// symbol/interval/strategy universe) named by path. This is distinct
// from config.Load's environment-derived ambient Config.
func loadSessionConfig(path string) (*models.SessionConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return models.DecodeSessionConfig(f)
}
