// Package application contains the application services.
package application

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// Ingestor turns geometry specs into polygons ready for fetching.
type Ingestor struct {
	geom   output.GeometryEngine
	logger *slog.Logger
}

// NewIngestor creates a new geometry ingestor.
func NewIngestor(geom output.GeometryEngine, logger *slog.Logger) *Ingestor {
	return &Ingestor{geom: geom, logger: logger}
}

// Parse extracts and parses the WKT of a geometry payload.
// The first key of domain.GeometryKeys holding a non-empty value wins.
func (i *Ingestor) Parse(payload domain.GeometrySpec) (domain.Polygon, error) {
	var raw interface{}
	for _, key := range domain.GeometryKeys {
		if v := payload[key]; !isEmptyValue(v) {
			raw = v
			break
		}
	}
	if raw == nil {
		return domain.Polygon{}, fmt.Errorf("no valid geometry found in request: %w", domain.ErrInvalidGeometry)
	}

	wkt, ok := raw.(string)
	if !ok || strings.TrimSpace(wkt) == "" {
		return domain.Polygon{}, fmt.Errorf("geometry must be a non-empty WKT string: %w", domain.ErrInvalidGeometry)
	}

	i.logger.Info("parsing WKT", "wkt", truncate(wkt, 100))

	p, err := i.geom.ParseWKT(wkt)
	if err != nil {
		return domain.Polygon{}, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
	}
	return p, nil
}

// isEmptyValue reports whether a decoded JSON value is null, empty or zero.
func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// Repair buffers an invalid polygon by zero. Whatever the buffer produces is
// returned; it is not checked for validity again.
func (i *Ingestor) Repair(p domain.Polygon) domain.Polygon {
	if p.Valid {
		return p
	}

	i.logger.Warn("invalid polygon, fixing", "bounds", p.Bounds.Slice())

	repaired, err := i.geom.MakeValid(p)
	if err != nil {
		i.logger.Warn("polygon repair failed, using input geometry", "error", err)
		return p
	}
	return repaired
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
