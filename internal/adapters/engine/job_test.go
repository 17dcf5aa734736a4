package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jobrunner/geotools/internal/adapters/storage"
	"github.com/jobrunner/geotools/internal/application"
	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// copyInputScript copies the request's input file into the workspace and
// reports it by absolute path.
const copyInputScript = `req=$(cat)
in=$(printf '%s' "$req" | sed -n 's/.*"input_path":"\([^"]*\)".*/\1/p')
out=$(printf '%s' "$req" | sed -n 's/.*"output_dir":"\([^"]*\)".*/\1/p')
cp "$in" sites.csv || exit 7
printf '{"sites":"%s/sites.csv"}\n' "$out"`

func TestJobServiceWithRelativeDirs(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, dir := range []string{"uploads", "outputs"} {
		if err := os.Mkdir(dir, 0o750); err != nil {
			t.Fatal(err)
		}
	}

	const content = "lat,lon,rsrp\n28.61,77.21,-90\n"
	svc := application.NewJobService(
		shellEngine(copyInputScript, 0),
		storage.NewLocalStorage("./outputs"),
		nil,
		nil,
		&output.NoOpMetrics{},
		discardLogger(),
		application.JobServiceConfig{UploadDir: "./uploads", OutputDir: "./outputs"},
	)

	result, err := svc.Submit(context.Background(),
		domain.Upload{Filename: "drive_test.csv", Content: strings.NewReader(content)},
		domain.JobParams{Method: domain.MethodNoML, MinSamples: 30, BinSize: 5},
	)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if result.Results["sites"] != "sites.csv" {
		t.Errorf("results = %v", result.Results)
	}

	data, err := os.ReadFile(filepath.Join("outputs", result.OutputDir, "sites.csv"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != content {
		t.Errorf("artifact = %q, want the uploaded content", data)
	}

	entries, err := os.ReadDir("uploads")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("uploads should be cleaned up, found %d entries", len(entries))
	}
}

func TestCommandRunResolvesRelativePaths(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.Mkdir("ws", 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("in.csv", []byte("a,b\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	req := domain.EngineRequest{
		JobID:        "cellsite_rel",
		InputPath:    "in.csv",
		WorkspaceDir: "ws",
		Config:       domain.NewEngineConfig(domain.JobParams{Method: domain.MethodNoML, MinSamples: 30, BinSize: 5}),
	}

	artifacts, err := shellEngine(copyInputScript, 0).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "ws", "sites.csv"); artifacts["sites"] != want {
		t.Errorf("sites = %q, want %q", artifacts["sites"], want)
	}
}
