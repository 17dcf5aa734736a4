package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

// noDataMarker and noDataTypeName identify feature-source errors that mean
// "the query matched nothing".
const (
	noDataMarker   = "No matching features"
	noDataTypeName = "InsufficientResponseError"
)

// FeatureFetcher queries the feature source and classifies the outcome.
type FeatureFetcher struct {
	source   output.FeatureSource
	cache    output.FeatureCache
	metrics  output.MetricsCollector
	logger   *slog.Logger
	useCache bool
}

// FetcherConfig holds configuration for the feature fetcher.
type FetcherConfig struct {
	UseCache bool
}

// NewFeatureFetcher creates a new feature fetcher.
func NewFeatureFetcher(
	source output.FeatureSource,
	cache output.FeatureCache,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg FetcherConfig,
) *FeatureFetcher {
	if cache == nil {
		cache = output.NoOpCache{}
	}
	return &FeatureFetcher{
		source:   source,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		useCache: cfg.UseCache,
	}
}

// Fetch returns the areal features matching tags inside polygon.
func (f *FeatureFetcher) Fetch(ctx context.Context, polygon domain.Polygon, tags domain.TagPredicate) domain.FetchResult {
	start := time.Now()

	widthM, heightM := polygon.Bounds.ApproxSizeMeters()
	f.logger.Info("fetching features",
		"source", f.source.Name(),
		"tags", tags.String(),
		"bounds", polygon.Bounds.Slice(),
		"area_sq_degrees", polygon.Area,
		"approx_size", fmt.Sprintf("%.1fm x %.1fm", widthM, heightM),
	)

	result := f.fetch(ctx, polygon, tags)

	f.metrics.IncFetchCount(result.Classification.String())
	f.metrics.ObserveFetchDuration(time.Since(start))

	switch result.Classification {
	case domain.FetchData:
		f.logger.Info("features found", "count", result.Count)
	case domain.FetchEmpty:
		f.logger.Warn("no features found for this area")
	case domain.FetchFailed:
		f.logger.Error("feature fetch failed", "error", result.Err)
	}

	return result
}

func (f *FeatureFetcher) fetch(ctx context.Context, polygon domain.Polygon, tags domain.TagPredicate) domain.FetchResult {
	key := cacheKey(polygon, tags)

	if f.useCache {
		if fc, ok := f.cachedCollection(ctx, key); ok {
			return classifyCollection(fc)
		}
	}

	raw, err := f.source.Features(ctx, polygon, tags)
	if err != nil {
		if isNoDataError(err) {
			f.storeCollection(ctx, key, geojson.NewFeatureCollection())
			return domain.NewEmptyResult()
		}
		return domain.NewErrorResult(&domain.FetchError{Source: f.source.Name(), Err: err})
	}

	if raw != nil {
		f.logger.Info("fetched raw features", "count", len(raw.Features))
	}

	filtered := filterAreal(raw)
	f.storeCollection(ctx, key, filtered)
	return classifyCollection(filtered)
}

func (f *FeatureFetcher) cachedCollection(ctx context.Context, key string) (*geojson.FeatureCollection, bool) {
	fc, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		f.logger.Warn("feature cache lookup failed", "error", err)
		return nil, false
	}
	f.metrics.IncCacheLookup(ok)
	return fc, ok
}

func (f *FeatureFetcher) storeCollection(ctx context.Context, key string, fc *geojson.FeatureCollection) {
	if !f.useCache {
		return
	}
	if err := f.cache.Set(ctx, key, fc); err != nil {
		f.logger.Warn("feature cache store failed", "error", err)
	}
}

// isNoDataError reports whether a feature-source error means the query
// matched nothing. This is the only place that inspects error text.
func isNoDataError(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), noDataMarker) {
		return true
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == noDataTypeName {
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return isNoDataError(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if isNoDataError(e) {
				return true
			}
		}
	}
	return false
}

// filterAreal keeps Polygon and MultiPolygon features.
func filterAreal(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, feature := range fc.Features {
		if feature == nil || feature.Geometry == nil {
			continue
		}
		if domain.IsAreal(feature.Geometry.GeoJSONType()) {
			out.Append(feature)
		}
	}
	return out
}

func classifyCollection(fc *geojson.FeatureCollection) domain.FetchResult {
	if fc == nil || len(fc.Features) == 0 {
		return domain.NewEmptyResult()
	}
	return domain.NewDataResult(fc)
}

func cacheKey(polygon domain.Polygon, tags domain.TagPredicate) string {
	sum := sha256.Sum256([]byte(tags.String() + "|" + polygon.WKT))
	return hex.EncodeToString(sum[:])
}
