package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncFetchCount increments the fetch counter by classification.
	IncFetchCount(classification string)

	// ObserveFetchDuration records feature fetch duration.
	ObserveFetchDuration(duration time.Duration)

	// IncCacheLookup counts cache lookups.
	IncCacheLookup(hit bool)

	// IncJobCount increments the job counter.
	IncJobCount(method string, success bool)

	// ObserveJobDuration records processing duration.
	ObserveJobDuration(method string, duration time.Duration)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// SetWorkspacesTracked sets the number of retained workspaces.
	SetWorkspacesTracked(count int)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncFetchCount implements MetricsCollector.
func (n *NoOpMetrics) IncFetchCount(_ string) {}

// ObserveFetchDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveFetchDuration(_ time.Duration) {}

// IncCacheLookup implements MetricsCollector.
func (n *NoOpMetrics) IncCacheLookup(_ bool) {}

// IncJobCount implements MetricsCollector.
func (n *NoOpMetrics) IncJobCount(_ string, _ bool) {}

// ObserveJobDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveJobDuration(_ string, _ time.Duration) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// SetWorkspacesTracked implements MetricsCollector.
func (n *NoOpMetrics) SetWorkspacesTracked(_ int) {}
