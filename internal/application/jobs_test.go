package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/geotools/internal/domain"
)

type jobFixture struct {
	svc       *JobService
	engine    *mockEngine
	storage   *mockStorage
	ledger    *recordingLedger
	events    *recordingPublisher
	metrics   *countingMetrics
	uploadDir string
	outputDir string
}

func newJobFixture(t *testing.T, engine *mockEngine) *jobFixture {
	t.Helper()
	f := &jobFixture{
		engine:    engine,
		storage:   &mockStorage{},
		ledger:    &recordingLedger{},
		events:    &recordingPublisher{},
		metrics:   newCountingMetrics(),
		uploadDir: t.TempDir(),
		outputDir: t.TempDir(),
	}
	f.svc = NewJobService(f.engine, f.storage, f.ledger, f.events, f.metrics, testLogger(), JobServiceConfig{
		UploadDir: f.uploadDir,
		OutputDir: f.outputDir,
	})
	return f
}

func nomlParams() domain.JobParams {
	return domain.JobParams{Method: domain.MethodNoML, MinSamples: 30, BinSize: 5, SoftSpacing: true, UseTA: true}
}

func csvUpload(name string) domain.Upload {
	return domain.Upload{Filename: name, Content: strings.NewReader("cell_id,lat,lon,rsrp\n1,28.6,77.2,-90\n")}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestJobServiceRejectsFileType(t *testing.T) {
	tests := []string{"measurements.exe", "measurements", "data.csv.sh", "report.pdf"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			f := newJobFixture(t, &mockEngine{artifacts: []string{"sites"}})

			_, err := f.svc.Submit(context.Background(), csvUpload(name), nomlParams())
			if !errors.Is(err, domain.ErrUnsupportedFileType) {
				t.Fatalf("Submit() error = %v, want ErrUnsupportedFileType", err)
			}
			if got := dirEntries(t, f.uploadDir); len(got) != 0 {
				t.Errorf("upload dir = %v, want empty", got)
			}
			if got := dirEntries(t, f.outputDir); len(got) != 0 {
				t.Errorf("output dir = %v, want empty", got)
			}
			if len(f.engine.requests) != 0 {
				t.Error("engine must not run")
			}
		})
	}
}

func TestJobServiceAcceptsExtensionsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"a.csv", "b.XLSX", "c.Xls"} {
		t.Run(name, func(t *testing.T) {
			f := newJobFixture(t, &mockEngine{artifacts: []string{"sites"}})
			if _, err := f.svc.Submit(context.Background(), csvUpload(name), nomlParams()); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
		})
	}
}

func TestJobServiceSubmitSuccess(t *testing.T) {
	f := newJobFixture(t, &mockEngine{artifacts: []string{"sites", "summary"}})

	result, err := f.svc.Submit(context.Background(), csvUpload("drive_test.csv"), nomlParams())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !result.Success || result.Message != "File processed successfully" {
		t.Errorf("result = %+v", result)
	}
	if result.Storage != "local" {
		t.Errorf("Storage = %q, want local", result.Storage)
	}
	if len(result.Results) != 2 || result.Results["sites"] != "sites.csv" {
		t.Errorf("Results = %v", result.Results)
	}

	pattern := regexp.MustCompile(`^cellsite_\d{8}T\d{6}Z_[0-9a-f]{32}$`)
	if !pattern.MatchString(result.OutputDir) {
		t.Errorf("OutputDir = %q does not look like a workspace id", result.OutputDir)
	}
	if _, err := os.Stat(filepath.Join(f.outputDir, result.OutputDir)); err != nil {
		t.Errorf("workspace should exist: %v", err)
	}

	if !f.engine.inputSeen {
		t.Error("input file should exist while the engine runs")
	}
	if got := dirEntries(t, f.uploadDir); len(got) != 0 {
		t.Errorf("upload dir = %v, want empty after success", got)
	}

	if len(f.ledger.begun) != 1 || len(f.ledger.finished) != 1 {
		t.Fatalf("ledger begin/finish = %d/%d, want 1/1", len(f.ledger.begun), len(f.ledger.finished))
	}
	if f.ledger.finished[0].Status != domain.JobStatusSucceeded {
		t.Errorf("ledger status = %s", f.ledger.finished[0].Status)
	}
	if len(f.events.events) != 1 || f.events.events[0].OutputDir != result.OutputDir {
		t.Errorf("events = %+v", f.events.events)
	}
	if f.metrics.jobs["noml:ok"] != 1 {
		t.Errorf("job metrics = %v", f.metrics.jobs)
	}
}

func TestJobServiceEngineConfig(t *testing.T) {
	tests := []struct {
		name   string
		params domain.JobParams
		check  func(t *testing.T, cfg domain.EngineConfig)
	}{
		{
			name:   "noml merges sites on soft spacing",
			params: nomlParams(),
			check: func(t *testing.T, cfg domain.EngineConfig) {
				if !cfg.MergeSites || !cfg.UseTA {
					t.Errorf("cfg = %+v, want merge_sites and use_ta", cfg)
				}
				if cfg.ModelPath != "" || cfg.TrainPath != "" {
					t.Error("noml must not forward model paths")
				}
			},
		},
		{
			name: "ml forwards model path",
			params: domain.JobParams{
				Method: domain.MethodML, MinSamples: 10, BinSize: 3, UseTA: true,
				ModelPath: "/models/rf.joblib",
			},
			check: func(t *testing.T, cfg domain.EngineConfig) {
				if cfg.ModelPath != "/models/rf.joblib" {
					t.Errorf("ModelPath = %q", cfg.ModelPath)
				}
				if cfg.UseTA || cfg.MergeSites {
					t.Error("ml must not forward noml options")
				}
				if cfg.MinSamples != 10 || cfg.BinSize != 3 {
					t.Errorf("sizes = %d/%d", cfg.MinSamples, cfg.BinSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobFixture(t, &mockEngine{artifacts: []string{"sites"}})
			if _, err := f.svc.Submit(context.Background(), csvUpload("m.csv"), tt.params); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if len(f.engine.requests) != 1 {
				t.Fatalf("engine runs = %d, want 1", len(f.engine.requests))
			}
			tt.check(t, f.engine.requests[0].Config)
		})
	}
}

func TestJobServiceInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params domain.JobParams
		want   error
	}{
		{"unknown method", domain.JobParams{Method: "deep", MinSamples: 1, BinSize: 1}, domain.ErrInvalidMethod},
		{"ml without model", domain.JobParams{Method: domain.MethodML, MinSamples: 1, BinSize: 1}, domain.ErrMissingModelReference},
		{"zero min samples", domain.JobParams{Method: domain.MethodNoML, BinSize: 1}, domain.ErrInvalidInput},
		{"zero bin size", domain.JobParams{Method: domain.MethodNoML, MinSamples: 1}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobFixture(t, &mockEngine{})
			_, err := f.svc.Submit(context.Background(), csvUpload("m.csv"), tt.params)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.want)
			}
			if got := dirEntries(t, f.uploadDir); len(got) != 0 {
				t.Errorf("upload dir = %v, want empty", got)
			}
		})
	}
}

func TestJobServiceEngineFailureCleansUp(t *testing.T) {
	f := newJobFixture(t, &mockEngine{err: errors.New("clustering failed for /data/uploads/x.csv")})

	params := domain.JobParams{Method: domain.MethodML, MinSamples: 5, BinSize: 2, TrainPath: "/secret/train.csv"}
	_, err := f.svc.Submit(context.Background(), csvUpload("m.xlsx"), params)

	var pe *domain.ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("Submit() error = %v, want ProcessingError", err)
	}
	if pe.Method != domain.MethodML {
		t.Errorf("Method = %s", pe.Method)
	}
	for k, v := range pe.Params {
		if s, ok := v.(string); ok && strings.Contains(s, "/") {
			t.Errorf("param %s leaks a path: %q", k, s)
		}
	}
	if pe.Params["has_train_path"] != true {
		t.Errorf("Params = %v, want has_train_path", pe.Params)
	}
	if !f.engine.inputSeen {
		t.Error("input file should exist while the engine runs")
	}
	if got := dirEntries(t, f.uploadDir); len(got) != 0 {
		t.Errorf("upload dir = %v, want empty after failure", got)
	}
	if len(f.ledger.finished) != 1 || f.ledger.finished[0].Status != domain.JobStatusFailed {
		t.Fatalf("ledger = %+v", f.ledger.finished)
	}
	recorded := []string{f.ledger.finished[0].Error, f.events.events[0].Error}
	for _, text := range recorded {
		if text == "" || strings.Contains(text, "/") {
			t.Errorf("recorded error = %q, want a path-free summary", text)
		}
		if !strings.Contains(text, "ml") {
			t.Errorf("recorded error = %q, want the method", text)
		}
	}
	if f.metrics.jobs["ml:failed"] != 1 {
		t.Errorf("job metrics = %v", f.metrics.jobs)
	}
}

func TestJobServiceEnginePanicCleansUp(t *testing.T) {
	f := newJobFixture(t, &mockEngine{panicMsg: "engine crashed"})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = f.svc.Submit(context.Background(), csvUpload("m.csv"), nomlParams())
	}()

	if got := dirEntries(t, f.uploadDir); len(got) != 0 {
		t.Errorf("upload dir = %v, want empty after panic", got)
	}
}

func TestJobServiceStoreFailure(t *testing.T) {
	f := newJobFixture(t, &mockEngine{artifacts: []string{"sites"}})
	f.storage.storeErr = errors.New("bucket unavailable")

	_, err := f.svc.Submit(context.Background(), csvUpload("m.csv"), nomlParams())
	if err == nil {
		t.Fatal("Submit() should fail when storing fails")
	}
	if got := dirEntries(t, f.uploadDir); len(got) != 0 {
		t.Errorf("upload dir = %v, want empty", got)
	}
}

func TestJobServiceDropsMissingArtifacts(t *testing.T) {
	f := newJobFixture(t, &mockEngine{artifacts: []string{"sites"}, missing: []string{"map"}})

	result, err := f.svc.Submit(context.Background(), csvUpload("m.csv"), nomlParams())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, ok := result.Results["map"]; ok {
		t.Error("missing artifact should not be reported")
	}
	if _, ok := result.Results["sites"]; !ok {
		t.Error("existing artifact should be reported")
	}
}

func TestJobServiceDistinctWorkspaces(t *testing.T) {
	f := newJobFixture(t, &mockEngine{artifacts: []string{"sites"}})
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		result, err := f.svc.Submit(context.Background(), csvUpload("m.csv"), nomlParams())
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if seen[result.OutputDir] {
			t.Fatalf("workspace %s reused", result.OutputDir)
		}
		seen[result.OutputDir] = true
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"data.csv", "data.csv"},
		{"../../etc/passwd.csv", "passwd.csv"},
		{`C:\Users\me\drive test.xlsx`, "drive_test.xlsx"},
		{".hidden.csv", "hidden.csv"},
		{"", "upload"},
		{"..", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitizeFilename(tt.in); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
