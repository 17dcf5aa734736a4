package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// ArtifactService resolves and lists stored workspace artifacts.
type ArtifactService struct {
	storage output.ArtifactStorage
	metrics output.MetricsCollector
}

// NewArtifactService creates a new artifact service.
func NewArtifactService(storage output.ArtifactStorage, metrics output.MetricsCollector) *ArtifactService {
	return &ArtifactService{storage: storage, metrics: metrics}
}

// Resolve locates an artifact of a workspace.
func (s *ArtifactService) Resolve(ctx context.Context, dir, filename string) (domain.ArtifactHandle, error) {
	if err := validateSegment("output_dir", dir); err != nil {
		return domain.ArtifactHandle{}, err
	}
	if err := validateSegment("filename", filename); err != nil {
		return domain.ArtifactHandle{}, err
	}

	start := time.Now()
	handle, err := s.storage.Resolve(ctx, dir, filename)
	s.metrics.IncStorageOperations("resolve", err == nil)
	s.metrics.ObserveStorageDuration("resolve", time.Since(start))
	return handle, err
}

// List returns the artifact filenames of a workspace.
func (s *ArtifactService) List(ctx context.Context, dir string) ([]string, error) {
	if err := validateSegment("output_dir", dir); err != nil {
		return nil, err
	}

	start := time.Now()
	files, err := s.storage.List(ctx, dir)
	s.metrics.IncStorageOperations("list", err == nil)
	s.metrics.ObserveStorageDuration("list", time.Since(start))
	return files, err
}

// Kind returns the active storage backend name.
func (s *ArtifactService) Kind() output.StorageKind {
	return s.storage.Kind()
}

// validateSegment rejects anything that is not a single path element.
func validateSegment(field, value string) error {
	if value == "" || value == "." || value == ".." ||
		strings.ContainsAny(value, `/\`) || strings.Contains(value, "\x00") {
		return &domain.ValidationError{
			Field:      field,
			Value:      value,
			Constraint: "single path element",
			Message:    fmt.Sprintf("invalid %s", field),
			Kind:       domain.ErrInvalidPath,
		}
	}
	return nil
}
