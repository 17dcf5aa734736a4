package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// WorkspacePrefix prefixes every workspace directory name.
const WorkspacePrefix = "cellsite_"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// JobService orchestrates cell-site processing jobs.
type JobService struct {
	engine    output.ProcessingEngine
	storage   output.ArtifactStorage
	ledger    output.JobLedger
	events    output.EventPublisher
	metrics   output.MetricsCollector
	logger    *slog.Logger
	uploadDir string
	outputDir string
	now       func() time.Time
}

// JobServiceConfig holds configuration for the job service.
type JobServiceConfig struct {
	UploadDir string
	OutputDir string
}

// NewJobService creates a new job service.
func NewJobService(
	engine output.ProcessingEngine,
	storage output.ArtifactStorage,
	ledger output.JobLedger,
	events output.EventPublisher,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg JobServiceConfig,
) *JobService {
	if ledger == nil {
		ledger = output.NoOpLedger{}
	}
	if events == nil {
		events = output.NoOpPublisher{}
	}
	return &JobService{
		engine:    engine,
		storage:   storage,
		ledger:    ledger,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		uploadDir: absDir(cfg.UploadDir),
		outputDir: absDir(cfg.OutputDir),
		now:       time.Now,
	}
}

// absDir returns dir as an absolute path, or dir itself if the working
// directory cannot be determined.
func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// Submit validates the upload, runs the engine and stores the artifacts.
// The transient input file is removed on every exit path.
func (s *JobService) Submit(ctx context.Context, upload domain.Upload, params domain.JobParams) (*domain.JobResult, error) {
	if !domain.IsAllowedFile(upload.Filename) {
		return nil, &domain.ValidationError{
			Field:      "file",
			Value:      upload.Filename,
			Constraint: strings.Join(domain.AllowedExtensions, "|"),
			Message:    "Invalid file type",
			Kind:       domain.ErrUnsupportedFileType,
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := s.now()
	job := &domain.Job{
		ID:        newJobID(start),
		Method:    params.Method,
		Params:    params,
		Status:    domain.JobStatusRunning,
		CreatedAt: start.UTC(),
	}

	inputPath, release, err := s.acquireInput(job.ID, upload)
	if err != nil {
		return nil, err
	}
	defer release()
	job.InputFile = inputPath

	s.logger.Info("file saved", "job_id", job.ID, "filename", upload.Filename, "method", job.Method)

	workspace := filepath.Join(s.outputDir, job.ID)
	if err := os.Mkdir(workspace, 0o750); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	job.WorkspaceDir = workspace

	s.logger.Info("output directory", "job_id", job.ID)

	s.recordBegin(ctx, job, upload.Filename)

	results, err := s.process(ctx, job)
	s.finish(ctx, job, upload.Filename, results, err)
	if err != nil {
		return nil, err
	}

	return &domain.JobResult{
		Success:   true,
		Results:   results,
		OutputDir: job.ID,
		Message:   "File processed successfully",
		Storage:   string(s.storage.Kind()),
	}, nil
}

// process dispatches to the engine and stores the produced artifacts.
func (s *JobService) process(ctx context.Context, job *domain.Job) (map[string]string, error) {
	cfg := domain.NewEngineConfig(job.Params)

	artifacts, err := s.engine.Run(ctx, domain.EngineRequest{
		JobID:        job.ID,
		InputPath:    job.InputFile,
		WorkspaceDir: job.WorkspaceDir,
		Config:       cfg,
	})
	if err != nil {
		return nil, &domain.ProcessingError{
			Method: job.Method,
			Params: cfg.Sanitized(),
			Err:    err,
		}
	}

	existing := make(map[string]string, len(artifacts))
	for name, path := range artifacts {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			s.logger.Warn("engine reported missing artifact", "job_id", job.ID, "artifact", name)
			continue
		}
		existing[name] = path
	}

	start := time.Now()
	handles, err := s.storage.Store(ctx, job.ID, existing)
	s.metrics.IncStorageOperations("store", err == nil)
	s.metrics.ObserveStorageDuration("store", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("storing artifacts: %w", err)
	}
	return handles, nil
}

// acquireInput persists the upload and returns a release func that removes
// it exactly once.
func (s *JobService) acquireInput(jobID string, upload domain.Upload) (string, func(), error) {
	path := filepath.Join(s.uploadDir, jobID+"_"+sanitizeFilename(upload.Filename))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) //#nosec G304 -- path is built from a generated ID
	if err != nil {
		return "", nil, fmt.Errorf("creating input file: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("cleanup failed", "job_id", jobID, "error", err)
				return
			}
			s.logger.Info("cleaned up input file", "job_id", jobID)
		})
	}

	_, copyErr := io.Copy(f, upload.Content)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		release()
		return "", nil, fmt.Errorf("saving input file: %w", errors.Join(copyErr, closeErr))
	}

	return path, release, nil
}

func (s *JobService) recordBegin(ctx context.Context, job *domain.Job, filename string) {
	err := s.ledger.Begin(ctx, domain.JobRecord{
		ID:        job.ID,
		Method:    job.Method,
		Filename:  filename,
		Status:    domain.JobStatusRunning,
		OutputDir: job.ID,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("failed to record job start", "job_id", job.ID, "error", err)
	}
}

func (s *JobService) finish(ctx context.Context, job *domain.Job, filename string, results map[string]string, runErr error) {
	finished := s.now().UTC()
	duration := finished.Sub(job.CreatedAt)

	job.Status = domain.JobStatusSucceeded
	var errText string
	if runErr != nil {
		job.Status = domain.JobStatusFailed
		errText = publicError(runErr)
		s.logger.Error("processing error", "job_id", job.ID, "method", job.Method, "error", runErr)
	} else {
		s.logger.Info("job finished", "job_id", job.ID, "artifacts", len(results), "duration", duration)
	}

	s.metrics.IncJobCount(string(job.Method), runErr == nil)
	s.metrics.ObserveJobDuration(string(job.Method), duration)

	err := s.ledger.Finish(ctx, domain.JobRecord{
		ID:         job.ID,
		Method:     job.Method,
		Filename:   filename,
		Status:     job.Status,
		OutputDir:  job.ID,
		Artifacts:  results,
		Error:      errText,
		CreatedAt:  job.CreatedAt,
		FinishedAt: &finished,
	})
	if err != nil {
		s.logger.Warn("failed to record job outcome", "job_id", job.ID, "error", err)
	}

	err = s.events.PublishJobFinished(ctx, domain.JobEvent{
		JobID:     job.ID,
		Method:    job.Method,
		Status:    job.Status,
		OutputDir: job.ID,
		Storage:   string(s.storage.Kind()),
		Artifacts: results,
		Error:     errText,
		Duration:  duration,
		Timestamp: finished,
	})
	if err != nil {
		s.logger.Warn("failed to publish job event", "job_id", job.ID, "error", err)
	}
}

// publicError is the failure text recorded for clients. Engine output and
// filesystem paths only go to the log.
func publicError(err error) string {
	var pe *domain.ProcessingError
	if errors.As(err, &pe) {
		return fmt.Sprintf("processing with method %s failed (params: %v)", pe.Method, pe.Params)
	}
	return "storing artifacts failed"
}

// newJobID returns a collision-resistant workspace identifier.
func newJobID(t time.Time) string {
	return WorkspacePrefix + t.UTC().Format("20060102T150405Z") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// sanitizeFilename reduces a client filename to a safe base name.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "upload"
	}
	return base
}
