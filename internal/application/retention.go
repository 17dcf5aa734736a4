package application

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/geotools/internal/ports/output"
)

// RetentionService removes local workspaces older than a maximum age.
type RetentionService struct {
	root     string
	maxAge   time.Duration
	interval time.Duration
	metrics  output.MetricsCollector
	logger   *slog.Logger

	// Lifecycle management
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	tracked map[string]time.Time // workspace name -> first seen

	// Prevents concurrent sweeps
	sweepMu sync.Mutex
}

// RetentionConfig holds configuration for the retention service.
type RetentionConfig struct {
	Root     string
	MaxAge   time.Duration
	Interval time.Duration
}

// NewRetentionService creates a new retention service.
func NewRetentionService(cfg RetentionConfig, metrics output.MetricsCollector, logger *slog.Logger) *RetentionService {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	return &RetentionService{
		root:     cfg.Root,
		maxAge:   cfg.MaxAge,
		interval: cfg.Interval,
		metrics:  metrics,
		logger:   logger,
		stopCh:   make(chan struct{}),
		tracked:  make(map[string]time.Time),
	}
}

// Start scans existing workspaces and begins the periodic sweep.
func (s *RetentionService) Start(ctx context.Context) error {
	if err := s.Scan(); err != nil {
		return err
	}

	s.logger.Info("starting retention service", "max_age", s.maxAge, "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// run is the main sweep loop.
func (s *RetentionService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("retention service stopped")
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick rescans the root before sweeping so workspaces created since the
// last tick expire even without filesystem notifications.
func (s *RetentionService) tick(now time.Time) int {
	if err := s.Scan(); err != nil {
		s.logger.Warn("retention scan failed", "error", err)
	}
	return s.Sweep(now)
}

// Stop gracefully stops the retention service.
func (s *RetentionService) Stop() {
	s.logger.Info("stopping retention service")
	close(s.stopCh)
	s.wg.Wait()
}

// Scan registers every workspace already present under the root, using the
// directory modification time as its age.
func (s *RetentionService) Scan() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() || !IsWorkspaceName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if _, ok := s.tracked[entry.Name()]; !ok {
			s.tracked[entry.Name()] = info.ModTime()
		}
	}
	s.metrics.SetWorkspacesTracked(len(s.tracked))
	return nil
}

// Track registers a workspace seen at the given time.
func (s *RetentionService) Track(name string, seen time.Time) {
	if !IsWorkspaceName(name) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracked[name]; !ok {
		s.tracked[name] = seen
	}
	s.metrics.SetWorkspacesTracked(len(s.tracked))
}

// Forget removes a workspace from tracking.
func (s *RetentionService) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, name)
	s.metrics.SetWorkspacesTracked(len(s.tracked))
}

// Tracked returns the number of tracked workspaces.
func (s *RetentionService) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// Sweep deletes every tracked workspace older than the maximum age at now.
// Returns the number of removed workspaces.
func (s *RetentionService) Sweep(now time.Time) int {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	s.mu.Lock()
	var expired []string
	for name, seen := range s.tracked {
		if now.Sub(seen) >= s.maxAge {
			expired = append(expired, name)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, name := range expired {
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			s.logger.Warn("failed to remove expired workspace", "workspace", name, "error", err)
			continue
		}
		s.Forget(name)
		removed++
	}

	if removed > 0 {
		s.logger.Info("retention sweep completed", "removed", removed, "tracked", s.Tracked())
	}
	return removed
}

// IsWorkspaceName reports whether name looks like a job workspace.
func IsWorkspaceName(name string) bool {
	return strings.HasPrefix(name, WorkspacePrefix) && !strings.ContainsAny(name, `/\`)
}
