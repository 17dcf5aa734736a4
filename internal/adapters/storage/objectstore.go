package storage

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// Bucket is the minimal client surface of an object store.
// Keys are relative to the bucket's configured prefix.
type Bucket interface {
	// Upload copies a local file to key.
	Upload(ctx context.Context, key, localPath string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// PresignGet returns a time-limited retrieval URL for key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// List returns every key starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ObjectStore implements ArtifactStorage on top of a Bucket.
// Workspaces are uploaded under "<workspaceID>/" and removed locally afterwards.
type ObjectStore struct {
	bucket    Bucket
	localRoot string
	urlExpiry time.Duration
	keepLocal bool
	logger    *slog.Logger
}

// ObjectStoreConfig holds object store configuration.
type ObjectStoreConfig struct {
	LocalRoot string        // Directory that holds the local workspaces
	URLExpiry time.Duration // Lifetime of presigned URLs
	KeepLocal bool          // Keep the local workspace after upload
}

// NewObjectStore creates a new object store adapter.
func NewObjectStore(bucket Bucket, cfg ObjectStoreConfig, logger *slog.Logger) *ObjectStore {
	if cfg.URLExpiry == 0 {
		cfg.URLExpiry = time.Hour
	}
	return &ObjectStore{
		bucket:    bucket,
		localRoot: cfg.LocalRoot,
		urlExpiry: cfg.URLExpiry,
		keepLocal: cfg.KeepLocal,
		logger:    logger,
	}
}

// Kind implements ArtifactStorage.
func (s *ObjectStore) Kind() output.StorageKind {
	return output.StorageKindObjectStore
}

// Store uploads the whole workspace tree and returns the object key per
// artifact. Artifact keys are always <workspace>/<base name> so they can be
// resolved as a single file name.
func (s *ObjectStore) Store(ctx context.Context, workspaceID string, artifacts map[string]string) (map[string]string, error) {
	workspace, err := filepath.Abs(filepath.Join(s.localRoot, workspaceID))
	if err != nil {
		return nil, &domain.StorageError{Operation: "store", Key: workspaceID, Err: err}
	}

	uploaded := make(map[string]string) // local path -> key
	err = filepath.WalkDir(workspace, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(workspace, p)
		if err != nil {
			return err
		}
		key := path.Join(workspaceID, filepath.ToSlash(rel))
		if err := s.bucket.Upload(ctx, key, p); err != nil {
			return &domain.StorageError{Operation: "store", Key: key, Err: err}
		}
		uploaded[filepath.Clean(p)] = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	handles := make(map[string]string, len(artifacts))
	for name, p := range artifacts {
		src, err := filepath.Abs(p)
		if err != nil {
			return nil, &domain.StorageError{Operation: "store", Key: workspaceID, Err: err}
		}
		key := path.Join(workspaceID, filepath.Base(src))
		if uploaded[src] != key {
			if err := s.bucket.Upload(ctx, key, src); err != nil {
				return nil, &domain.StorageError{Operation: "store", Key: key, Err: err}
			}
		}
		handles[name] = key
	}

	s.logger.Info("workspace uploaded", "workspace", workspaceID, "objects", len(uploaded))

	if !s.keepLocal {
		if err := os.RemoveAll(workspace); err != nil {
			s.logger.Warn("failed to remove local workspace", "workspace", workspaceID, "error", err)
		}
	}

	return handles, nil
}

// Resolve checks the object exists and returns a presigned URL.
func (s *ObjectStore) Resolve(ctx context.Context, dir, filename string) (domain.ArtifactHandle, error) {
	key := path.Join(dir, filename)

	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return domain.ArtifactHandle{}, &domain.StorageError{Operation: "resolve", Key: key, Err: err}
	}
	if !ok {
		keys, err := s.bucket.List(ctx, dir+"/")
		if err == nil && len(keys) == 0 {
			return domain.ArtifactHandle{}, domain.ErrWorkspaceNotFound
		}
		return domain.ArtifactHandle{}, domain.ErrArtifactNotFound
	}

	url, err := s.bucket.PresignGet(ctx, key, s.urlExpiry)
	if err != nil {
		return domain.ArtifactHandle{}, &domain.StorageError{Operation: "presign", Key: key, Err: err}
	}
	return domain.ArtifactHandle{URL: url}, nil
}

// List returns the top-level file names under dir, sorted.
func (s *ObjectStore) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dir + "/"

	keys, err := s.bucket.List(ctx, prefix)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Key: dir, Err: err}
	}
	if len(keys) == 0 {
		return nil, domain.ErrWorkspaceNotFound
	}

	files := make([]string, 0, len(keys))
	for _, key := range keys {
		if rel := strings.TrimPrefix(key, prefix); rel != "" && !strings.Contains(rel, "/") {
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files, nil
}

// joinPrefix prepends a configured bucket prefix to key.
func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// trimPrefix removes a configured bucket prefix from key.
func trimPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")), "/")
}
