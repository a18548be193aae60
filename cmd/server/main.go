package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/llm-proxy/cmd"
	"github.com/nulzo/llm-proxy/internal/accounting"
	"github.com/nulzo/llm-proxy/internal/analytics"
	"github.com/nulzo/llm-proxy/internal/cli"
	"github.com/nulzo/llm-proxy/internal/config"
	"github.com/nulzo/llm-proxy/internal/gateway"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/internal/platform/logger"
	"github.com/nulzo/llm-proxy/internal/platform/otel"
	"github.com/nulzo/llm-proxy/internal/registry"
	"github.com/nulzo/llm-proxy/internal/server"
	"github.com/nulzo/llm-proxy/internal/store/cache"
	"github.com/nulzo/llm-proxy/internal/store/cache/memory"
	"github.com/nulzo/llm-proxy/internal/store/cache/redis"
	"github.com/nulzo/llm-proxy/internal/store/sqlite"
	"github.com/nulzo/llm-proxy/pkg/api"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed to load config: %v\n", cli.CrossMark(), err)
		os.Exit(1)
	}

	logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		EnableColor: cfg.Log.Color,
	})
	defer logger.Sync()
	log := logger.Get()

	if cfg.Log.Format != "json" {
		fmt.Println(cli.Banner("llm-proxy", "v"+cmd.AppVersion))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(cfg.Tracing.ServiceName, cmd.AppVersion, log, os.Stdout)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	models, err := registry.Load(cfg.Models)
	if err != nil {
		return fmt.Errorf("load model registry: %w", err)
	}
	accountant := accounting.New(models)

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	defer func() {
		_ = repo.Close()
	}()

	overviewCache, closeCache, err := newCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	// the ingestor outlives the signal context so Stop can drain it
	ingestor := analytics.NewIngestor(log, repo, analytics.IngestorConfig{
		BufferSize:    cfg.Usage.BufferSize,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
	})
	ingestor.Start(context.Background())
	defer ingestor.Stop()

	dispatcher := gateway.New(gateway.Options{
		Logger:     log.Named("gateway"),
		Registry:   models,
		Accountant: accountant,
		HTTPClient: &http.Client{Timeout: cfg.Upstream.Timeout},
		Providers:  providerOptions(cfg),
		Reporter:   ingestor,
		Breaker: gateway.BreakerSettings{
			Enabled:          cfg.CircuitBreaker.Enabled,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			OpenTimeout:      cfg.CircuitBreaker.OpenTimeout,
			Interval:         cfg.CircuitBreaker.Interval,
		},
	})

	configured := make(map[api.Provider]bool)
	for _, p := range dispatcher.Configured() {
		configured[p] = true
	}
	for _, p := range api.Providers() {
		if configured[p] {
			log.Info(fmt.Sprintf("%s %s", cli.CheckMark(), p), zap.String("credential", "default"))
		} else {
			log.Info(fmt.Sprintf("%s %s", cli.WarningSign(), p),
				zap.String("credential", "per-request only"),
				zap.String("header", p.CredentialHeader()),
			)
		}
	}

	srv := server.New(cfg, log, server.Deps{
		Dispatcher: dispatcher,
		Models:     models,
		Accountant: accountant,
		Usage:      analytics.NewService(log, repo, overviewCache, cfg.Usage.CacheTTL),
		Version:    cmd.AppVersion,
	}).HTTPServer()

	if cfg.Server.CheckUpdates {
		go cmd.CheckForUpdates(ctx, log, cmd.AppVersion)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("%s LLM Proxy Service listening", cli.Arrow()),
			zap.String("addr", srv.Addr),
			zap.Int("models", len(models.Names())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("LLM Proxy Service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func providerOptions(cfg *config.Config) map[api.Provider]gateway.ProviderOptions {
	out := make(map[api.Provider]gateway.ProviderOptions)
	for _, p := range api.Providers() {
		pc := cfg.Provider(p.String())
		out[p] = gateway.ProviderOptions{
			Endpoint: llm.Endpoint{
				BaseURL:           pc.BaseURL,
				Headers:           pc.Headers,
				SystemInstruction: pc.SystemInstruction,
			},
			APIKey: pc.APIKey,
		}
	}
	return out
}

func newCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.CacheService, func(), error) {
	if !cfg.Redis.Enabled {
		return memory.New(), func() {}, nil
	}

	c, err := redis.New(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "llm-proxy:",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("Usage overview cache backed by redis", zap.String("addr", cfg.Redis.Addr))

	return c, func() { _ = c.Close() }, nil
}
