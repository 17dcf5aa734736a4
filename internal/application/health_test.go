package application

import (
	"context"
	"testing"

	"github.com/jobrunner/geotools/internal/ports/output"
)

func TestHealthServiceIsHealthy(t *testing.T) {
	service := NewHealthService(output.StorageKindLocal, nil)

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceGetHealthDetails(t *testing.T) {
	service := NewHealthService(output.StorageKindObjectStore, map[string]string{
		"cache":  "enabled",
		"ledger": "disabled",
	})

	details := service.GetHealthDetails(context.Background())

	if !details.Healthy {
		t.Error("Healthy should be true")
	}
	if details.Storage != "object-store" {
		t.Errorf("Storage = %q, want object-store", details.Storage)
	}
	if details.Components["storage"] != "object-store" {
		t.Errorf("Components[storage] = %q", details.Components["storage"])
	}
	if details.Components["cache"] != "enabled" || details.Components["ledger"] != "disabled" {
		t.Errorf("Components = %v", details.Components)
	}
}
