package application

import (
	"context"

	"github.com/jobrunner/geotools/internal/ports/input"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// HealthService provides health check functionality.
type HealthService struct {
	storage    output.StorageKind
	components map[string]string
}

// NewHealthService creates a new health service.
// components maps optional component names to "enabled"/"disabled".
func NewHealthService(storage output.StorageKind, components map[string]string) *HealthService {
	if components == nil {
		components = map[string]string{}
	}
	return &HealthService{
		storage:    storage,
		components: components,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Liveness only
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := make(map[string]string, len(s.components)+1)
	components["storage"] = string(s.storage)
	for k, v := range s.components {
		components[k] = v
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Storage:    string(s.storage),
		Components: components,
	}
}
