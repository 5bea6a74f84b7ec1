// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package presence wires the presence API service together.
//
// This package contains the Service type that coordinates the components:
// telemetry, the day store (JSON-lines files, optionally mirrored into
// badger), the catalog, the directory watcher and the HTTP router.
//
// # Data Flow
//
//	log_YYYY-MM-DD.txt ──► jsonl.Store ──(mirror, optional)──► badger.Store
//	        │                                                     │
//	   jsonl.Watcher ──► changed dates ──► Catalog.Refresh ◄──────┘
//	                                              │
//	                                    gin router (handlers)
//
// # Usage
//
//	svc, err := presence.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/venuewatch/pkg/logging"
	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/config"
	"github.com/AleutianAI/venuewatch/services/presence/middleware"
	"github.com/AleutianAI/venuewatch/services/presence/observability"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/routes"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
	badgerstore "github.com/AleutianAI/venuewatch/services/presence/storage/badger"
	"github.com/AleutianAI/venuewatch/services/presence/storage/jsonl"
	"github.com/AleutianAI/venuewatch/services/presence/telemetry"
)

const serviceName = "venuewatch"

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the presence API lifecycle.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance. Close may be
// called from any goroutine; Run calls it on return.
type Service interface {
	// Run loads the catalog, starts the watcher and serves HTTP until ctx
	// is cancelled or the server fails. Cancellation triggers a graceful
	// shutdown and returns nil.
	Run(ctx context.Context) error

	// Router returns the configured gin engine, for tests.
	Router() *gin.Engine

	// Catalog returns the catalog behind the API.
	Catalog() *catalog.Catalog

	// Close releases stores and flushes telemetry.
	Close() error
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	cfg     config.Config
	logger  *slog.Logger
	router  *gin.Engine
	catalog *catalog.Catalog
	metrics *observability.Metrics

	files  *jsonl.Store
	mirror *badgerstore.Store

	telemetryShutdown func(context.Context) error
	closeOnce         sync.Once
	closeErr          error
}

// Option adjusts how New builds the service.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the HTTP metrics with reg instead of the default
// Prometheus registry. Tests pass a fresh registry per service.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds the service from a validated configuration.
//
// # Description
//
// Initialises telemetry, opens the JSON-lines store at cfg.LogDir and, when
// configured, the badger mirror, builds the catalog and the router. Nothing
// is loaded yet; Run does the first load.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Invalid configuration, telemetry or store failures. Anything
//     opened before the failure is closed.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger, opts ...Option) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &service{
		cfg:    cfg,
		logger: logger.Slog().With("component", "service"),
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown

	queryMetrics, err := telemetry.NewMetrics(otel.Meter(serviceName))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	s.metrics = observability.NewMetrics(o.registerer)

	grid, err := resample.NewGrid(cfg.Analysis.Tick)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.catalog = catalog.New(
		analysis.New(cfg.AnalyzerConfig()),
		grid,
		catalog.WithWorkers(cfg.Analysis.Workers),
		catalog.WithLogger(logger.Slog().With("component", "catalog")),
		catalog.WithMetrics(queryMetrics),
	)

	s.files, err = jsonl.Open(cfg.LogDir)
	if err != nil {
		s.Close()
		return nil, err
	}
	if cfg.Badger.Enabled() {
		bcfg := badgerstore.DefaultConfig(cfg.Badger.Path)
		bcfg.InMemory = cfg.Badger.InMemory
		bcfg.Logger = logger.Slog().With("component", "badger")
		s.mirror, err = badgerstore.Open(bcfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		s.logger.Info("badger mirror enabled", "path", cfg.Badger.Path, "in_memory", cfg.Badger.InMemory)
	}

	s.initRouter()
	return s, nil
}

// repository is where the catalog reads days from: the mirror when
// enabled, otherwise the day files.
func (s *service) repository() storage.Reader {
	if s.mirror != nil {
		return s.mirror
	}
	return s.files
}

func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(serviceName),
		s.metrics.Middleware(),
		middleware.AccessLog(s.logger),
		middleware.RateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst),
	)
	routes.SetupRoutes(s.router, routes.Deps{
		Catalog: s.catalog,
		Reload: func(ctx context.Context) (catalog.ReloadResult, error) {
			return s.reload(ctx, observability.TriggerAPI)
		},
		Metrics: telemetry.MetricsHandler(),
	})
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Catalog() *catalog.Catalog { return s.catalog }

// reload syncs the mirror from the day files, then reloads the catalog.
func (s *service) reload(ctx context.Context, trigger observability.ReloadTrigger) (catalog.ReloadResult, error) {
	if s.mirror != nil {
		dates, err := s.files.Dates(ctx)
		if err != nil {
			s.metrics.RecordReload(trigger, 0, err)
			return catalog.ReloadResult{}, err
		}
		if err := s.syncMirror(ctx, dates); err != nil {
			s.metrics.RecordReload(trigger, 0, err)
			return catalog.ReloadResult{}, err
		}
	}
	res, err := s.catalog.Reload(ctx, s.repository())
	s.metrics.RecordReload(trigger, s.catalog.Len(), err)
	return res, err
}

// refresh handles a batch of changed day files.
func (s *service) refresh(ctx context.Context, dates []civil.Date) {
	if s.mirror != nil {
		if err := s.syncMirror(ctx, dates); err != nil {
			s.metrics.RecordReload(observability.TriggerWatch, 0, err)
			s.logger.Error("mirror sync failed", "error", err)
			return
		}
	}
	res, err := s.catalog.Refresh(ctx, s.repository(), dates...)
	s.metrics.RecordReload(observability.TriggerWatch, s.catalog.Len(), err)
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		return
	}
	s.logger.Info("days refreshed",
		"dates", len(dates),
		"loaded", res.Days,
		"removed", len(res.Removed),
		"skipped", len(res.Skipped),
	)
}

// syncMirror replaces each date in badger with the day file's content.
// Dates whose file is gone are deleted; unreadable files are left alone.
func (s *service) syncMirror(ctx context.Context, dates []civil.Date) error {
	for _, date := range dates {
		l, err := s.files.LoadDay(ctx, date)
		switch {
		case errors.Is(err, storage.ErrDayNotFound):
			if err := s.mirror.DeleteDay(ctx, date); err != nil {
				return err
			}
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			s.logger.Warn("not mirroring unreadable day", "date", date.String(), "error", err)
			continue
		}
		if err := s.mirror.DeleteDay(ctx, date); err != nil {
			return err
		}
		if err := s.mirror.Append(ctx, l.Snapshots()...); err != nil {
			return err
		}
	}
	return nil
}

// Run implements Service.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	res, err := s.reload(ctx, observability.TriggerStartup)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	s.logger.Info("catalog loaded", "days", res.Days, "samples", res.Samples, "skipped", len(res.Skipped))

	if s.cfg.Server.Watch {
		w, err := jsonl.NewWatcher(s.files, s.refresh, &jsonl.WatcherOptions{
			Debounce: s.cfg.Server.Debounce,
			Logger:   s.logger,
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		s.logger.Info("watching day files", "dir", s.files.Dir())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting presence API server", "port", s.cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close implements Service.
func (s *service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.mirror != nil {
			errs = append(errs, s.mirror.Close())
		}
		if s.files != nil {
			errs = append(errs, s.files.Close())
		}
		if s.telemetryShutdown != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.telemetryShutdown(ctx); err != nil {
				s.logger.Error("failed to shutdown telemetry", "error", err)
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

var _ Service = (*service)(nil)
