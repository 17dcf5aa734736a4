// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"

	"github.com/jobrunner/geotools/internal/domain"
)

// ArtifactStorage defines the secondary port for workspace artifact storage.
// Exactly one implementation is selected at startup.
type ArtifactStorage interface {
	// Store persists the workspace and returns a handle per logical artifact name.
	Store(ctx context.Context, workspaceID string, artifacts map[string]string) (map[string]string, error)

	// Resolve locates a single artifact for download.
	Resolve(ctx context.Context, dir, filename string) (domain.ArtifactHandle, error)

	// List returns the artifact filenames of a workspace.
	List(ctx context.Context, dir string) ([]string, error)

	// Kind returns the backend name reported to clients.
	Kind() StorageKind
}

// StorageKind is the client-visible storage backend name.
type StorageKind string

const (
	StorageKindLocal       StorageKind = "local"
	StorageKindObjectStore StorageKind = "object-store"
)

// StorageType represents the configured storage provider.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
)
