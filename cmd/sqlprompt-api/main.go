package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlprompt/sqlprompt/internal/api"
	"github.com/sqlprompt/sqlprompt/internal/config"
	"github.com/sqlprompt/sqlprompt/internal/history"
	"github.com/sqlprompt/sqlprompt/internal/llm"
	"github.com/sqlprompt/sqlprompt/internal/nl2sql"
	"github.com/sqlprompt/sqlprompt/internal/observability"
	"github.com/sqlprompt/sqlprompt/internal/pipeline"
	"github.com/sqlprompt/sqlprompt/internal/query"
	s3store "github.com/sqlprompt/sqlprompt/internal/storage/s3"
	"github.com/sqlprompt/sqlprompt/internal/target"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlprompt-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	model, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	targetOptions := target.Options{
		DefaultDriver:   cfg.Target.DefaultDriver,
		AllowedDrivers:  cfg.Target.AllowedDrivers,
		ConnectTimeout:  cfg.Target.ConnectTimeout,
		MaxOpenConns:    cfg.Target.MaxOpenConns,
		MaxIdleConns:    cfg.Target.MaxIdleConns,
		ConnMaxLifetime: cfg.Target.ConnMaxLifetime,
	}
	var connector target.Connector = target.NewDirectConnector(targetOptions)
	if cfg.Target.PoolEnabled {
		pool := target.NewPool(targetOptions, target.PoolConfig{
			MaxEntries: cfg.Target.PoolMaxEntries,
			IdleTTL:    cfg.Target.PoolIdleTTL,
		}, logger)
		defer pool.Close()
		connector = pool
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := []api.ReadinessCheck{api.CheckLLMConfig(cfg)}
	var recorder history.Recorder = history.Discard{}
	// The archiver outlives the server so records from requests drained by Shutdown
	// still reach the final flush.
	archiverCtx, stopArchiver := context.WithCancel(context.Background())
	defer stopArchiver()
	archiverDone := make(chan struct{})
	if cfg.History.Enabled {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver := history.NewArchiver(store, history.ArchiverConfig{
			Prefix:        cfg.History.Prefix,
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
			MaxBuffered:   cfg.History.MaxBuffered,
		}, logger)
		recorder = archiver
		readiness = append(readiness, api.CheckObjectStore(store))
		go func() {
			defer close(archiverDone)
			_ = archiver.Run(archiverCtx)
		}()
	} else {
		close(archiverDone)
	}

	queryPipeline := &pipeline.Pipeline{
		Connector: connector,
		Extractor: &nl2sql.Extractor{LLM: model},
		Generator: &nl2sql.Generator{LLM: model},
		Executor:  &query.Executor{Explain: cfg.Guard.Explain},
		Guard:     query.NewGuard(cfg.Guard.AllowedStatements, cfg.Guard.DeniedStatements),
		Timeouts: pipeline.Timeouts{
			LLMCall: cfg.Pipeline.LLMCallTimeout,
			Schema:  cfg.Pipeline.SchemaTimeout,
			Execute: cfg.Pipeline.ExecuteTimeout,
		},
		History: recorder,
		Logger:  logger,
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Pipeline:          queryPipeline,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("llm_provider", cfg.LLM.Provider),
			slog.String("llm_model", cfg.LLM.Model),
			slog.Bool("pool_enabled", cfg.Target.PoolEnabled),
			slog.Bool("history_enabled", cfg.History.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	shutdownErr := drainThenStop(shutdownCtx, server, stopArchiver, archiverDone)
	if shutdownErr != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", shutdownErr))
		_ = server.Close()
		os.Exit(1)
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drainThenStop waits for in-flight requests before stopping background work, so
// anything those requests hand off is still picked up.
func drainThenStop(ctx context.Context, server shutdowner, stopBackground context.CancelFunc, backgroundDone <-chan struct{}) error {
	err := server.Shutdown(ctx)
	stopBackground()
	<-backgroundDone
	return err
}
