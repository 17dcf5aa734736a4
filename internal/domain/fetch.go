package domain

import (
	"github.com/paulmach/orb/geojson"
)

// FetchClassification is the outcome class of a feature fetch.
type FetchClassification int

// Fetch classifications.
const (
	FetchData FetchClassification = iota
	FetchEmpty
	FetchFailed
)

// String returns the string representation of the classification.
func (c FetchClassification) String() string {
	switch c {
	case FetchData:
		return "data"
	case FetchEmpty:
		return "empty"
	case FetchFailed:
		return "error"
	default:
		return "unknown"
	}
}

// FetchResult is the tagged result of querying the feature source.
// Exactly one classification holds: Data carries features, Error carries Err.
type FetchResult struct {
	Classification FetchClassification
	Features       *geojson.FeatureCollection
	Count          int
	Err            error
}

// NewDataResult returns a Data result for a non-empty collection.
func NewDataResult(fc *geojson.FeatureCollection) FetchResult {
	return FetchResult{
		Classification: FetchData,
		Features:       fc,
		Count:          len(fc.Features),
	}
}

// NewEmptyResult returns an Empty result.
func NewEmptyResult() FetchResult {
	return FetchResult{Classification: FetchEmpty}
}

// NewErrorResult returns an Error result.
func NewErrorResult(err error) FetchResult {
	return FetchResult{Classification: FetchFailed, Err: err}
}

// IsAreal reports whether a GeoJSON geometry type is Polygon or MultiPolygon.
func IsAreal(geomType string) bool {
	return geomType == "Polygon" || geomType == "MultiPolygon"
}
