package output

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geotools/internal/domain"
)

// FeatureSource defines the secondary port for the external geodata source.
type FeatureSource interface {
	// Features returns every feature matching tags inside the polygon.
	Features(ctx context.Context, polygon domain.Polygon, tags domain.TagPredicate) (*geojson.FeatureCollection, error)

	// Name identifies the source in logs and errors.
	Name() string
}

// FeatureCache caches feature fetch outcomes keyed by query.
type FeatureCache interface {
	// Get returns the cached collection; ok is false on a miss.
	Get(ctx context.Context, key string) (fc *geojson.FeatureCollection, ok bool, err error)

	// Set stores a collection. An empty collection records a no-data outcome.
	Set(ctx context.Context, key string, fc *geojson.FeatureCollection) error
}

// NoOpCache never hits.
type NoOpCache struct{}

// Get implements FeatureCache.
func (NoOpCache) Get(_ context.Context, _ string) (*geojson.FeatureCollection, bool, error) {
	return nil, false, nil
}

// Set implements FeatureCache.
func (NoOpCache) Set(_ context.Context, _ string, _ *geojson.FeatureCollection) error {
	return nil
}

// GeometryEngine defines the secondary port for the validity/repair primitive.
type GeometryEngine interface {
	// ParseWKT parses WKT text into a polygon with its validity flag set.
	ParseWKT(wkt string) (domain.Polygon, error)

	// MakeValid applies a zero-width buffer to the polygon.
	MakeValid(p domain.Polygon) (domain.Polygon, error)
}
