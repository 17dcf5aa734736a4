package output

import (
	"context"

	"github.com/jobrunner/geotools/internal/domain"
)

// ProcessingEngine defines the secondary port for cell-site position estimation.
type ProcessingEngine interface {
	// Run writes artifacts into req.WorkspaceDir and returns logical name -> path.
	Run(ctx context.Context, req domain.EngineRequest) (map[string]string, error)
}

// JobLedger records job submissions and outcomes.
type JobLedger interface {
	// Begin records a running job.
	Begin(ctx context.Context, rec domain.JobRecord) error

	// Finish records the final state of a job.
	Finish(ctx context.Context, rec domain.JobRecord) error

	// Get returns a job record by ID.
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
}

// NoOpLedger discards records.
type NoOpLedger struct{}

// Begin implements JobLedger.
func (NoOpLedger) Begin(_ context.Context, _ domain.JobRecord) error { return nil }

// Finish implements JobLedger.
func (NoOpLedger) Finish(_ context.Context, _ domain.JobRecord) error { return nil }

// Get implements JobLedger.
func (NoOpLedger) Get(_ context.Context, _ string) (*domain.JobRecord, error) {
	return nil, domain.ErrJobNotFound
}

// EventPublisher publishes job lifecycle events.
type EventPublisher interface {
	PublishJobFinished(ctx context.Context, ev domain.JobEvent) error
}

// NoOpPublisher drops events.
type NoOpPublisher struct{}

// PublishJobFinished implements EventPublisher.
func (NoOpPublisher) PublishJobFinished(_ context.Context, _ domain.JobEvent) error { return nil }
