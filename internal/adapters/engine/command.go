// Package engine runs the cell-site processing engine as an external command.
//
// The command receives a JSON request on stdin and must print a JSON object
// mapping logical artifact names to file paths on stdout. Relative paths are
// resolved against the workspace. Stderr is kept in the workspace as
// run_<method>.log.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobrunner/geotools/internal/domain"
)

const (
	// maxStderrTail bounds the stderr excerpt attached to errors.
	maxStderrTail = 512

	// waitDelay bounds how long output pipes are drained after the engine is killed.
	waitDelay = 2 * time.Second
)

// Config holds command engine configuration.
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration // 0 means no limit beyond the request context
}

// Command implements ProcessingEngine by executing a program.
type Command struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand creates a new command engine.
func NewCommand(cfg Config, logger *slog.Logger) *Command {
	return &Command{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// request is the stdin payload.
type request struct {
	JobID       string `json:"job_id"`
	Method      string `json:"method"`
	InputPath   string `json:"input_path"`
	OutputDir   string `json:"output_dir"`
	MinSamples  int    `json:"min_samples"`
	BinSize     int    `json:"bin_size"`
	SoftSpacing bool   `json:"soft_spacing"`
	MakeMap     bool   `json:"make_map"`
	UseTA       bool   `json:"use_ta,omitempty"`
	MergeSites  bool   `json:"merge_sites,omitempty"`
	TrainPath   string `json:"train_path,omitempty"`
	ModelPath   string `json:"model_path,omitempty"`
}

// Run implements ProcessingEngine.
func (c *Command) Run(ctx context.Context, req domain.EngineRequest) (map[string]string, error) {
	if c.command == "" {
		return nil, errors.New("no engine command configured")
	}

	// The engine's working directory is the workspace.
	var err error
	if req.WorkspaceDir, err = filepath.Abs(req.WorkspaceDir); err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	if req.InputPath, err = filepath.Abs(req.InputPath); err != nil {
		return nil, fmt.Errorf("resolving input: %w", err)
	}

	payload, err := json.Marshal(newRequest(req))
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logPath := filepath.Join(req.WorkspaceDir, fmt.Sprintf("run_%s.log", req.Config.Method))
	logFile, err := os.Create(logPath) //#nosec G304 -- path is inside the job workspace
	if err != nil {
		return nil, fmt.Errorf("creating run log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: maxStderrTail}

	cmd := exec.CommandContext(runCtx, c.command, c.args...) //#nosec G204 -- command comes from trusted configuration
	cmd.Dir = req.WorkspaceDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(logFile, stderr)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	c.logger.Info("starting processing engine", "job_id", req.JobID, "method", req.Config.Method)

	err = cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("engine timed out after %s", c.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("engine failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	artifacts, err := parseArtifacts(stdout.Bytes(), req.WorkspaceDir)
	if err != nil {
		return nil, err
	}

	c.logger.Info("processing engine finished",
		"job_id", req.JobID,
		"artifacts", len(artifacts),
		"duration", time.Since(start),
	)
	return artifacts, nil
}

func newRequest(req domain.EngineRequest) request {
	cfg := req.Config
	return request{
		JobID:       req.JobID,
		Method:      string(cfg.Method),
		InputPath:   req.InputPath,
		OutputDir:   req.WorkspaceDir,
		MinSamples:  cfg.MinSamples,
		BinSize:     cfg.BinSize,
		SoftSpacing: cfg.SoftSpacing,
		MakeMap:     cfg.MakeMap,
		UseTA:       cfg.UseTA,
		MergeSites:  cfg.MergeSites,
		TrainPath:   cfg.TrainPath,
		ModelPath:   cfg.ModelPath,
	}
}

// parseArtifacts decodes the artifact map from the last JSON object on stdout.
func parseArtifacts(out []byte, workspace string) (map[string]string, error) {
	out = bytes.TrimSpace(out)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	if len(out) == 0 {
		return map[string]string{}, nil
	}

	var raw map[string]string
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decoding engine output: %w", err)
	}

	artifacts := make(map[string]string, len(raw))
	for name, p := range raw {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(workspace, p)
		}
		artifacts[name] = p
	}
	return artifacts, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
