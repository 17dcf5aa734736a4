// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// MetersPerDegree is the rough linear length of one degree used for diagnostics.
const MetersPerDegree = 111000.0

// GeometrySpec is the raw geometry payload of a request.
type GeometrySpec map[string]interface{}

// GeometryKeys are the recognized WKT keys, in lookup order.
var GeometryKeys = []string{"wkt", "WKT"}

// Bounds represents a spatial bounding box in degrees.
type Bounds struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// BoundsFromOrb converts an orb bound.
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{MinX: b.Min.X(), MinY: b.Min.Y(), MaxX: b.Max.X(), MaxY: b.Max.Y()}
}

// IsValid checks if the bounds have valid dimensions.
func (b Bounds) IsValid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Width returns the width in degrees.
func (b Bounds) Width() float64 {
	return math.Abs(b.MaxX - b.MinX)
}

// Height returns the height in degrees.
func (b Bounds) Height() float64 {
	return math.Abs(b.MaxY - b.MinY)
}

// ApproxSizeMeters returns the approximate width and height in meters.
func (b Bounds) ApproxSizeMeters() (float64, float64) {
	return b.Width() * MetersPerDegree, b.Height() * MetersPerDegree
}

// Slice returns the bounds as [minx, miny, maxx, maxy].
func (b Bounds) Slice() []float64 {
	return []float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// Polygon is a parsed and possibly repaired areal geometry.
type Polygon struct {
	WKT      string       // Source or repaired WKT
	Geometry orb.Geometry // Polygon, MultiPolygon or whatever repair produced
	Bounds   Bounds
	Area     float64 // Square degrees
	Valid    bool    // Validity at the time of the last check
	Repaired bool
}

// Rings returns the exterior rings of every polygon member.
func (p Polygon) Rings() []orb.Ring {
	var rings []orb.Ring
	switch g := p.Geometry.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			rings = append(rings, g[0])
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			if len(poly) > 0 {
				rings = append(rings, poly[0])
			}
		}
	case orb.Collection:
		for _, member := range g {
			rings = append(rings, Polygon{Geometry: member}.Rings()...)
		}
	}
	return rings
}

// IsEmpty returns true if the polygon has no rings.
func (p Polygon) IsEmpty() bool {
	return len(p.Rings()) == 0
}

// TagPredicate selects external features by tag. An empty value matches any value.
type TagPredicate map[string]string

// BuildingTags selects every feature carrying a building tag.
var BuildingTags = TagPredicate{"building": ""}

// String returns a stable textual form of the predicate.
func (t TagPredicate) String() string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		if t[k] == "" {
			parts[i] = k
			continue
		}
		parts[i] = fmt.Sprintf("%s=%s", k, t[k])
	}
	return strings.Join(parts, ",")
}
