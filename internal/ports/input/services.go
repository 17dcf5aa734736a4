// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/geotools/internal/domain"
)

// BuildingService defines the primary port for building extraction.
type BuildingService interface {
	// Generate extracts buildings for the geometry in payload and returns the
	// response envelope together with its HTTP status code.
	Generate(ctx context.Context, payload domain.GeometrySpec) (domain.ResultEnvelope, int)
}

// JobService defines the primary port for cell-site processing jobs.
type JobService interface {
	// Submit validates and runs a job for the uploaded file.
	Submit(ctx context.Context, upload domain.Upload, params domain.JobParams) (*domain.JobResult, error)
}

// ArtifactService defines the primary port for artifact retrieval.
type ArtifactService interface {
	// Resolve locates an artifact for download.
	Resolve(ctx context.Context, dir, filename string) (domain.ArtifactHandle, error)

	// List returns the artifact filenames of a workspace.
	List(ctx context.Context, dir string) ([]string, error)
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Storage    string            // Active storage backend
	Components map[string]string // Component statuses
}

// HealthService defines the primary port for health checks.
type HealthService interface {
	IsHealthy(ctx context.Context) bool
	GetHealthDetails(ctx context.Context) HealthDetails
}

// JobLookup defines the primary port for reading recorded jobs.
type JobLookup interface {
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
}
