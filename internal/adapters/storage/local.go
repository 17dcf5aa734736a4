// Package storage provides artifact storage adapters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// LocalStorage implements ArtifactStorage on the local filesystem.
// Workspaces live directly under basePath.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// Kind implements ArtifactStorage.
func (s *LocalStorage) Kind() output.StorageKind {
	return output.StorageKindLocal
}

// Store returns the workspace file name of every artifact. Artifacts written
// below or outside the workspace top level are copied into it, so every
// handle is a single downloadable file name.
func (s *LocalStorage) Store(_ context.Context, workspaceID string, artifacts map[string]string) (map[string]string, error) {
	workspace, err := filepath.Abs(s.FullPath(workspaceID))
	if err != nil {
		return nil, &domain.StorageError{Operation: "store", Key: workspaceID, Err: err}
	}
	handles := make(map[string]string, len(artifacts))

	for name, p := range artifacts {
		src, err := filepath.Abs(p)
		if err != nil {
			return nil, &domain.StorageError{Operation: "store", Key: workspaceID + "/" + filepath.Base(p), Err: err}
		}
		base := filepath.Base(src)
		if err := copyFile(src, filepath.Join(workspace, base)); err != nil {
			return nil, &domain.StorageError{Operation: "store", Key: workspaceID + "/" + base, Err: err}
		}
		handles[name] = base
	}

	return handles, nil
}

// Resolve returns the local path of an artifact.
func (s *LocalStorage) Resolve(_ context.Context, dir, filename string) (domain.ArtifactHandle, error) {
	if err := s.checkWorkspace(dir); err != nil {
		return domain.ArtifactHandle{}, err
	}

	path := filepath.Join(s.FullPath(dir), filename)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ArtifactHandle{}, domain.ErrArtifactNotFound
		}
		return domain.ArtifactHandle{}, &domain.StorageError{Operation: "resolve", Key: dir + "/" + filename, Err: err}
	}
	if !info.Mode().IsRegular() {
		return domain.ArtifactHandle{}, domain.ErrArtifactNotFound
	}

	return domain.ArtifactHandle{LocalPath: path}, nil
}

// List returns the regular files of a workspace, sorted by name.
func (s *LocalStorage) List(_ context.Context, dir string) ([]string, error) {
	if err := s.checkWorkspace(dir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.FullPath(dir))
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: dir, Err: err}
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// FullPath returns the full path for a workspace-relative key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, key)
}

func (s *LocalStorage) checkWorkspace(dir string) error {
	info, err := os.Stat(s.FullPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrWorkspaceNotFound
		}
		return &domain.StorageError{Operation: "stat", Key: dir, Err: err}
	}
	if !info.IsDir() {
		return domain.ErrWorkspaceNotFound
	}
	return nil
}

// copyFile copies src to dest, creating dest's directory if needed.
// It is a no-op when both name the same file.
func copyFile(src, dest string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if destInfo, err := os.Stat(dest); err == nil && os.SameFile(srcInfo, destInfo) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	in, err := os.Open(src) //#nosec G304 -- src is an engine-reported artifact
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest) //#nosec G304 -- dest is inside the workspace
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
