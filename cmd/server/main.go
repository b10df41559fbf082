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

	"github.com/TimurManjosov/gorules/internal/api"
	"github.com/TimurManjosov/gorules/internal/config"
	"github.com/TimurManjosov/gorules/internal/events"
	"github.com/TimurManjosov/gorules/internal/logging"
	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/service"
	"github.com/TimurManjosov/gorules/internal/snapshot"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/TimurManjosov/gorules/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gorules: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	schema := rules.DefaultSchema()
	if cfg.SchemaFile != "" {
		if schema, err = rules.LoadSchemaFile(cfg.SchemaFile); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, store.Options{
		Type:        cfg.StoreType,
		DSN:         cfg.DatabaseDSN,
		AutoMigrate: cfg.DBAutoMigrate,
		Redis: store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		},
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("store close failed")
		}
	}()

	telemetry.Init()

	publisher, closeEvents, err := setupEvents(cfg, logger)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer closeEvents()

	svc := service.New(st, service.Options{
		Schema:   schema,
		Snapshot: snapshot.NewHolder(),
		Events:   publisher,
		Strategy: cfg.CombineStrategy(),
		Logger:   logger,
	})
	if err := svc.Refresh(ctx); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	snap := svc.Snapshot().Load()
	logger.Info().
		Int("rules", len(snap.Rules)).
		Str("etag", snap.ETag).
		Str("store", cfg.StoreType).
		Str("events", cfg.EventsSink).
		Msg("snapshot loaded")

	srvAPI := api.NewServer(svc, api.Options{
		AdminAPIKey:    cfg.AdminAPIKey,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitPerIP: cfg.RateLimitPerIP,
		Logger:         logger,
	})

	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	if cfg.AdminAPIKey == "" {
		logger.Warn().Msg("ADMIN_API_KEY is empty, write routes are unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, "api", logger) })
	g.Go(func() error { return serve(metricsServer, "metrics", logger) })
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutCtx), metricsServer.Shutdown(shutCtx))
	})

	err = g.Wait()
	logger.Info().Msg("stopped")
	return err
}

func serve(srv *http.Server, name string, logger zerolog.Logger) error {
	logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// setupEvents starts a dispatcher when a sink is configured.
func setupEvents(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func(), error) {
	sink, err := events.NewSink(cfg)
	if err != nil {
		return nil, nil, err
	}
	if sink == nil {
		return events.Nop{}, func() {}, nil
	}
	d := events.NewDispatcher(sink, events.Options{QueueSize: cfg.EventsQueue}, logger)
	d.Start()
	return d, func() {
		if err := d.Close(); err != nil {
			logger.Error().Err(err).Str("sink", sink.Name()).Msg("events close failed")
		}
	}, nil
}
