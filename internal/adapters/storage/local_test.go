package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

func newWorkspace(t *testing.T, files ...string) (string, string) {
	t.Helper()
	root := t.TempDir()
	ws := "cellsite_20250301T120000Z_0123"
	for _, f := range files {
		path := filepath.Join(root, ws, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("test"), 0o600); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
	if len(files) == 0 {
		if err := os.Mkdir(filepath.Join(root, ws), 0o750); err != nil {
			t.Fatal(err)
		}
	}
	return root, ws
}

func TestNewLocalStorage(t *testing.T) {
	storage := NewLocalStorage("/tmp/test")

	if storage == nil {
		t.Fatal("NewLocalStorage() returned nil")
	}
	if storage.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", storage.basePath, "/tmp/test")
	}
	if storage.Kind() != output.StorageKindLocal {
		t.Errorf("Kind() = %q", storage.Kind())
	}
}

func TestLocalStorageStore(t *testing.T) {
	root, ws := newWorkspace(t, "sites.csv", "maps/coverage.html")

	outside := filepath.Join(t.TempDir(), "summary.json")
	if err := os.WriteFile(outside, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	storage := NewLocalStorage(root)
	handles, err := storage.Store(context.Background(), ws, map[string]string{
		"sites":   filepath.Join(root, ws, "sites.csv"),
		"map":     filepath.Join(root, ws, "maps", "coverage.html"),
		"summary": outside,
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	want := map[string]string{
		"sites":   "sites.csv",
		"map":     "coverage.html",
		"summary": "summary.json",
	}
	for k, v := range want {
		if handles[k] != v {
			t.Errorf("handles[%s] = %q, want %q", k, handles[k], v)
		}
	}
	if _, err := os.Stat(filepath.Join(root, ws, "summary.json")); err != nil {
		t.Errorf("outside artifact should be copied into the workspace: %v", err)
	}

	// Every handle resolves and lists as a top-level workspace file.
	files, err := storage.List(context.Background(), ws)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, h := range handles {
		if _, err := storage.Resolve(context.Background(), ws, h); err != nil {
			t.Errorf("Resolve(%q) error = %v", h, err)
		}
		if !slices.Contains(files, h) {
			t.Errorf("List() = %v, missing %q", files, h)
		}
	}
}

func TestLocalStorageStoreRelativeRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	ws := "cellsite_20250301T120000Z_0123"
	if err := os.MkdirAll(filepath.Join("outputs", ws), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("outputs", ws, "sites.csv"), []byte("lat,lon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(filepath.Join("outputs", ws, "sites.csv"))
	if err != nil {
		t.Fatal(err)
	}

	storage := NewLocalStorage("./outputs")
	handles, err := storage.Store(context.Background(), ws, map[string]string{
		"sites":    abs,
		"relative": filepath.Join("outputs", ws, "sites.csv"),
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if handles["sites"] != "sites.csv" || handles["relative"] != "sites.csv" {
		t.Errorf("handles = %v", handles)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "lat,lon\n" {
		t.Errorf("artifact content = %q, want it untouched", data)
	}
}

func TestLocalStorageResolve(t *testing.T) {
	root, ws := newWorkspace(t, "sites.csv", "maps/coverage.html")
	storage := NewLocalStorage(root)
	ctx := context.Background()

	tests := []struct {
		name     string
		dir      string
		filename string
		wantErr  error
	}{
		{"existing file", ws, "sites.csv", nil},
		{"missing workspace", "cellsite_missing", "sites.csv", domain.ErrWorkspaceNotFound},
		{"missing file", ws, "nope.csv", domain.ErrArtifactNotFound},
		{"directory", ws, "maps", domain.ErrArtifactNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, err := storage.Resolve(ctx, tt.dir, tt.filename)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, domain.ErrNotFound) {
					t.Error("not found errors must match ErrNotFound")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if handle.IsRemote() {
				t.Error("local handle must not be remote")
			}
			if handle.LocalPath != filepath.Join(root, ws, tt.filename) {
				t.Errorf("LocalPath = %q", handle.LocalPath)
			}
		})
	}
}

func TestLocalStorageList(t *testing.T) {
	root, ws := newWorkspace(t, "sites.csv", "b.html", "maps/nested.html")
	storage := NewLocalStorage(root)

	files, err := storage.List(context.Background(), ws)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// Only regular files at the top level, sorted
	if len(files) != 2 || files[0] != "b.html" || files[1] != "sites.csv" {
		t.Errorf("files = %v", files)
	}
}

func TestLocalStorageListEmpty(t *testing.T) {
	root, ws := newWorkspace(t)
	storage := NewLocalStorage(root)

	files, err := storage.List(context.Background(), ws)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want empty", files)
	}
}

func TestLocalStorageListMissing(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())

	_, err := storage.List(context.Background(), "cellsite_missing")
	if !errors.Is(err, domain.ErrWorkspaceNotFound) {
		t.Errorf("List() error = %v, want ErrWorkspaceNotFound", err)
	}
}
