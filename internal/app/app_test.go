package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobrunner/geotools/internal/adapters/watcher"
	"github.com/jobrunner/geotools/internal/application"
	"github.com/jobrunner/geotools/internal/config"
	"github.com/jobrunner/geotools/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: time.Second,
			MaxUploadBytes:  1 << 20,
		},
		Paths: config.PathsConfig{
			UploadDir: filepath.Join(root, "uploads"),
			OutputDir: filepath.Join(root, "outputs"),
		},
		Storage:  config.StorageConfig{Type: "local"},
		CellSite: config.CellSiteConfig{DefaultMinSamples: 30, DefaultBinSize: 5},
		Retention: config.RetentionConfig{
			Enabled:  true,
			MaxAge:   time.Hour,
			Interval: time.Minute,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestInitStorage(t *testing.T) {
	cfg := testConfig(t)

	store, err := initStorage(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("initStorage() error = %v", err)
	}
	if store.Kind() != output.StorageKindLocal {
		t.Errorf("Kind() = %q; want %q", store.Kind(), output.StorageKindLocal)
	}

	cfg.Storage.Type = "ftp"
	if _, err := initStorage(context.Background(), cfg, testLogger()); err == nil {
		t.Error("initStorage() should reject an unknown storage type")
	}
}

func TestNewWiresLocalApplication(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.HTTPServer == nil || a.JobService == nil || a.BuildingService == nil {
		t.Fatal("core services not wired")
	}
	if a.RetentionService == nil {
		t.Error("retention should be enabled for local storage")
	}
	if a.Ledger != nil || a.Events != nil || a.Cache != nil {
		t.Error("optional adapters should stay disabled")
	}
	if a.MetricsServer != nil {
		t.Error("metrics server should not be created when disabled")
	}

	details := a.HealthService.GetHealthDetails(context.Background())
	if details.Components["retention"] != time.Hour.String() {
		t.Errorf("retention component = %q", details.Components["retention"])
	}
}

func TestNewWithLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger = config.LedgerConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "jobs.db")}

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Ledger == nil {
		t.Fatal("ledger should be opened when enabled")
	}
	if err := a.Ledger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHandleWorkspaceEvent(t *testing.T) {
	cfg := testConfig(t)
	a := &App{
		Config: cfg,
		Logger: testLogger(),
		RetentionService: application.NewRetentionService(application.RetentionConfig{
			Root:     cfg.Paths.OutputDir,
			MaxAge:   time.Hour,
			Interval: time.Minute,
		}, &output.NoOpMetrics{}, testLogger()),
	}

	path := filepath.Join(cfg.Paths.OutputDir, "cellsite_20240101_120000_abc")

	if err := a.handleWorkspaceEvent(context.Background(), watcher.Event{Path: path, Operation: watcher.OpCreate}); err != nil {
		t.Fatalf("create event error = %v", err)
	}
	if got := a.RetentionService.Tracked(); got != 1 {
		t.Errorf("Tracked() after create = %d; want 1", got)
	}

	if err := a.handleWorkspaceEvent(context.Background(), watcher.Event{Path: path, Operation: watcher.OpDelete}); err != nil {
		t.Fatalf("delete event error = %v", err)
	}
	if got := a.RetentionService.Tracked(); got != 0 {
		t.Errorf("Tracked() after delete = %d; want 0", got)
	}
}
