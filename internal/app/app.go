// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geotools/internal/adapters/cache"
	"github.com/jobrunner/geotools/internal/adapters/engine"
	"github.com/jobrunner/geotools/internal/adapters/events"
	"github.com/jobrunner/geotools/internal/adapters/geometry"
	httpAdapter "github.com/jobrunner/geotools/internal/adapters/http"
	"github.com/jobrunner/geotools/internal/adapters/ledger"
	"github.com/jobrunner/geotools/internal/adapters/metrics"
	"github.com/jobrunner/geotools/internal/adapters/overpass"
	"github.com/jobrunner/geotools/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/geotools/internal/adapters/tls"
	"github.com/jobrunner/geotools/internal/adapters/watcher"
	"github.com/jobrunner/geotools/internal/application"
	"github.com/jobrunner/geotools/internal/config"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config           *config.Config
	Logger           *slog.Logger
	Storage          output.ArtifactStorage
	Cache            *cache.RedisCache
	Ledger           *ledger.SQLiteLedger
	Events           *events.Publisher
	BuildingService  *application.BuildingService
	JobService       *application.JobService
	ArtifactService  *application.ArtifactService
	HealthService    *application.HealthService
	RetentionService *application.RetentionService
	HTTPServer       *httpAdapter.Server
	TLSServer        *tlsAdapter.Server
	Watcher          *watcher.Watcher
	Metrics          *metrics.Collector
	MetricsServer    *metrics.Server
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	var middleware []mux.MiddlewareFunc
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("geotools")
		app.MetricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		metricsCollector = app.Metrics
		middleware = append(middleware, app.Metrics.Middleware)
	}

	components := map[string]string{
		"cache":     "disabled",
		"ledger":    "disabled",
		"events":    "disabled",
		"retention": "disabled",
	}

	// Initialize storage adapter
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	// Optional feature cache
	var featureCache output.FeatureCache
	if cfg.Fetch.UseCache && cfg.Fetch.RedisURL != "" {
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: cfg.Fetch.RedisURL, TTL: cfg.Fetch.CacheTTL})
		if err != nil {
			logger.Warn("feature cache unavailable, continuing without it", "error", err)
		} else {
			app.Cache = c
			featureCache = c
			components["cache"] = "redis"
		}
	}

	// Building extraction pipeline
	source := overpass.NewSource(overpass.Config{
		Endpoint:    cfg.Overpass.Endpoint,
		Timeout:     cfg.Overpass.Timeout,
		MaxParallel: cfg.Overpass.MaxParallel,
	}, nil)
	fetcher := application.NewFeatureFetcher(source, featureCache, metricsCollector, logger,
		application.FetcherConfig{UseCache: featureCache != nil})
	app.BuildingService = application.NewBuildingService(
		application.NewIngestor(geometry.NewGEOS(), logger),
		fetcher,
		logger,
	)

	// Optional job ledger
	var jobLedger output.JobLedger
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(ctx, cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("opening job ledger: %w", err)
		}
		app.Ledger = l
		jobLedger = l
		components["ledger"] = "sqlite"
	}

	// Optional job events
	var publisher output.EventPublisher
	if cfg.Events.NATSURL != "" {
		p, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			logger.Warn("event publisher unavailable, continuing without it", "error", err)
		} else {
			app.Events = p
			publisher = p
			components["events"] = "nats"
		}
	}

	// Cell-site jobs
	app.JobService = application.NewJobService(
		engine.NewCommand(engine.Config{
			Command: cfg.Engine.Command,
			Args:    cfg.Engine.Args,
			Timeout: cfg.Engine.Timeout,
		}, logger),
		app.Storage,
		jobLedger,
		publisher,
		metricsCollector,
		logger,
		application.JobServiceConfig{
			UploadDir: cfg.Paths.UploadDir,
			OutputDir: cfg.Paths.OutputDir,
		},
	)
	app.ArtifactService = application.NewArtifactService(app.Storage, metricsCollector)

	// Local workspace retention
	if cfg.Retention.Enabled && output.StorageType(cfg.Storage.Type) == output.StorageTypeLocal {
		app.RetentionService = application.NewRetentionService(application.RetentionConfig{
			Root:     cfg.Paths.OutputDir,
			MaxAge:   cfg.Retention.MaxAge,
			Interval: cfg.Retention.Interval,
		}, metricsCollector, logger)
		components["retention"] = cfg.Retention.MaxAge.String()

		if cfg.Retention.Watch {
			w, err := watcher.New(
				watcher.Config{
					Paths:  []string{cfg.Paths.OutputDir},
					Prefix: application.WorkspacePrefix,
				},
				app.handleWorkspaceEvent,
				logger,
			)
			if err != nil {
				logger.Warn("failed to initialize workspace watcher", "error", err)
			} else {
				app.Watcher = w
			}
		}
	}

	app.HealthService = application.NewHealthService(app.Storage.Kind(), components)

	services := httpAdapter.Services{
		Buildings: app.BuildingService,
		Jobs:      app.JobService,
		Artifacts: app.ArtifactService,
		Health:    app.HealthService,
	}
	if app.Ledger != nil {
		services.Ledger = app.Ledger
	}

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		services,
		httpAdapter.JobDefaults{
			MinSamples: cfg.CellSite.DefaultMinSamples,
			BinSize:    cfg.CellSite.DefaultBinSize,
		},
		logger,
		middleware...,
	)

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			},
			cfg.Server.Address(),
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	return app, nil
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	if a.RetentionService != nil {
		if err := a.RetentionService.Start(ctx); err != nil {
			a.Logger.Warn("failed to start retention service", "error", err)
		}
	}

	// Start workspace watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start workspace watcher", "error", err)
		}
	}

	// Start metrics server in background
	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Start server
	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe()
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	// Stop watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.RetentionService != nil {
		a.RetentionService.Stop()
	}

	// Shutdown metrics server
	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Shutdown HTTP server
	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTPS server shutdown error", "error", err)
		}
	} else if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	if a.Events != nil {
		a.Events.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Error("cache close error", "error", err)
		}
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			a.Logger.Error("ledger close error", "error", err)
		}
	}

	return nil
}

// handleWorkspaceEvent keeps retention tracking in step with the output root.
func (a *App) handleWorkspaceEvent(_ context.Context, event watcher.Event) error {
	name := filepath.Base(event.Path)

	switch event.Operation {
	case watcher.OpCreate:
		a.RetentionService.Track(name, time.Now())
	case watcher.OpDelete:
		a.RetentionService.Forget(name)
	case watcher.OpModify:
	}

	return nil
}

// initStorage initializes the artifact storage selected by storage.type.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (output.ArtifactStorage, error) {
	objectCfg := storage.ObjectStoreConfig{
		LocalRoot: cfg.Paths.OutputDir,
		URLExpiry: cfg.Storage.URLExpiry,
		KeepLocal: cfg.Storage.KeepLocal,
	}

	switch output.StorageType(cfg.Storage.Type) {
	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.Paths.OutputDir), nil

	case output.StorageTypeS3:
		bucket, err := storage.NewS3Bucket(ctx, storage.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Prefix:          cfg.Storage.S3.Prefix,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewObjectStore(bucket, objectCfg, logger), nil

	case output.StorageTypeAzure:
		bucket, err := storage.NewAzureBucket(storage.AzureConfig{
			Container:        cfg.Storage.Azure.Container,
			AccountName:      cfg.Storage.Azure.AccountName,
			AccountKey:       cfg.Storage.Azure.AccountKey,
			ConnectionString: cfg.Storage.Azure.ConnectionString,
			Prefix:           cfg.Storage.Azure.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewObjectStore(bucket, objectCfg, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}
