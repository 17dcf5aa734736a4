package domain

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Method is a cell-site position estimation method.
type Method string

// Estimation methods.
const (
	MethodNoML Method = "noml" // rule-based
	MethodML   Method = "ml"   // model-based
)

// IsValid returns true for a known method.
func (m Method) IsValid() bool {
	return m == MethodNoML || m == MethodML
}

// AllowedExtensions lists the accepted upload file extensions.
var AllowedExtensions = []string{"csv", "xlsx", "xls"}

// IsAllowedFile checks the extension of a filename against AllowedExtensions.
func IsAllowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// JobParams holds the user supplied job parameters.
type JobParams struct {
	Method      Method
	MinSamples  int
	BinSize     int
	SoftSpacing bool
	UseTA       bool
	MakeMap     bool
	ModelPath   string
	TrainPath   string
}

// Validate checks the parameters independently of the uploaded file.
func (p JobParams) Validate() error {
	if !p.Method.IsValid() {
		return &ValidationError{
			Field:      "method",
			Value:      p.Method,
			Constraint: "noml|ml",
			Message:    "method must be noml or ml",
			Kind:       ErrInvalidMethod,
		}
	}
	if p.MinSamples < 1 {
		return &ValidationError{
			Field:      "min_samples",
			Value:      p.MinSamples,
			Constraint: ">= 1",
			Message:    "min_samples must be positive",
		}
	}
	if p.BinSize < 1 {
		return &ValidationError{
			Field:      "bin_size",
			Value:      p.BinSize,
			Constraint: ">= 1",
			Message:    "bin_size must be positive",
		}
	}
	if p.Method == MethodML && p.ModelPath == "" && p.TrainPath == "" {
		return &ValidationError{
			Field:      "model_path",
			Value:      "",
			Constraint: "train_path or model_path",
			Message:    "ml method requires train_path or model_path",
			Kind:       ErrMissingModelReference,
		}
	}
	return nil
}

// Upload is an uploaded measurement file.
type Upload struct {
	Filename string
	Content  io.Reader
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Job statuses.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a single cell-site processing request.
type Job struct {
	ID           string
	Method       Method
	Params       JobParams
	InputFile    string
	WorkspaceDir string
	Status       JobStatus
	CreatedAt    time.Time
}

// EngineConfig is the method-specific parameter set handed to the processing engine.
type EngineConfig struct {
	Method      Method
	MinSamples  int
	BinSize     int
	SoftSpacing bool
	UseTA       bool
	MakeMap     bool
	MergeSites  bool
	TrainPath   string
	ModelPath   string
}

// NewEngineConfig builds the engine parameter set for the job's method.
func NewEngineConfig(p JobParams) EngineConfig {
	cfg := EngineConfig{
		Method:      p.Method,
		MinSamples:  p.MinSamples,
		BinSize:     p.BinSize,
		SoftSpacing: p.SoftSpacing,
		MakeMap:     p.MakeMap,
	}
	switch p.Method {
	case MethodNoML:
		cfg.UseTA = p.UseTA
		cfg.MergeSites = p.SoftSpacing
	case MethodML:
		cfg.TrainPath = p.TrainPath
		cfg.ModelPath = p.ModelPath
	}
	return cfg
}

// Sanitized returns the parameters without any filesystem paths.
func (c EngineConfig) Sanitized() map[string]interface{} {
	params := map[string]interface{}{
		"min_samples":  c.MinSamples,
		"bin_size":     c.BinSize,
		"soft_spacing": c.SoftSpacing,
		"make_map":     c.MakeMap,
	}
	switch c.Method {
	case MethodNoML:
		params["use_ta"] = c.UseTA
		params["merge_sites"] = c.MergeSites
	case MethodML:
		params["has_train_path"] = c.TrainPath != ""
		params["has_model_path"] = c.ModelPath != ""
	}
	return params
}

// EngineRequest is one invocation of the processing engine.
type EngineRequest struct {
	JobID        string
	InputPath    string
	WorkspaceDir string
	Config       EngineConfig
}

// OutputArtifact is a named file produced by the processing engine.
type OutputArtifact struct {
	LogicalName string
	Handle      string
}

// ArtifactHandle locates a stored artifact for download.
type ArtifactHandle struct {
	LocalPath string // Set for the local backend
	URL       string // Set for the object-store backend
}

// IsRemote returns true if the handle is a retrieval URL.
func (h ArtifactHandle) IsRemote() bool {
	return h.URL != ""
}

// JobResult is the success contract of an upload.
type JobResult struct {
	Success   bool              `json:"success"`
	Results   map[string]string `json:"results"`
	OutputDir string            `json:"output_dir"`
	Message   string            `json:"message"`
	Storage   string            `json:"storage"`
}

// JobRecord is the audit entry of a job.
type JobRecord struct {
	ID         string            `json:"id"`
	Method     Method            `json:"method"`
	Filename   string            `json:"filename"`
	Status     JobStatus         `json:"status"`
	OutputDir  string            `json:"output_dir"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// JobEvent is published when a job finishes.
type JobEvent struct {
	JobID     string            `json:"job_id"`
	Method    Method            `json:"method"`
	Status    JobStatus         `json:"status"`
	OutputDir string            `json:"output_dir"`
	Storage   string            `json:"storage"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration_ns"`
	Timestamp time.Time         `json:"timestamp"`
}
