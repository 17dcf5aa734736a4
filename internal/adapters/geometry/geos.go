// Package geometry provides the GEOS-based geometry validity and repair primitive.
package geometry

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/jobrunner/geotools/internal/domain"
)

// bufferQuadSegs is the GEOS default segment count per quarter circle.
const bufferQuadSegs = 8

// GEOS implements the GeometryEngine port using libgeos.
type GEOS struct {
	ctx *geos.Context
}

// NewGEOS creates a new GEOS geometry engine.
func NewGEOS() *GEOS {
	return &GEOS{ctx: geos.NewContext()}
}

// ParseWKT parses WKT text and records its validity.
func (e *GEOS) ParseWKT(wkt string) (p domain.Polygon, err error) {
	// libgeos reports some malformed input by panicking through the binding.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing WKT: %v", r)
		}
	}()

	g, err := e.ctx.NewGeomFromWKT(wkt)
	if err != nil {
		return domain.Polygon{}, fmt.Errorf("parsing WKT: %w", err)
	}

	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
	default:
		return domain.Polygon{}, fmt.Errorf("expected polygon or multipolygon, got %s", g.Type())
	}
	if g.IsEmpty() {
		return domain.Polygon{}, errors.New("empty geometry")
	}

	return toPolygon(g, wkt)
}

// MakeValid applies a zero-width buffer to the polygon.
func (e *GEOS) MakeValid(p domain.Polygon) (domain.Polygon, error) {
	g, err := e.ctx.NewGeomFromWKT(p.WKT)
	if err != nil {
		return p, fmt.Errorf("reparsing WKT: %w", err)
	}

	buffered := g.Buffer(0, bufferQuadSegs)
	repaired, err := toPolygon(buffered, buffered.ToWKT())
	if err != nil {
		return p, err
	}
	repaired.Repaired = true
	return repaired, nil
}

// toPolygon builds the domain polygon from a GEOS geometry.
func toPolygon(g *geos.Geom, wkt string) (domain.Polygon, error) {
	orbGeom, err := toOrb(g)
	if err != nil {
		return domain.Polygon{}, err
	}

	p := domain.Polygon{
		WKT:      wkt,
		Geometry: orbGeom,
		Area:     g.Area(),
		Valid:    g.IsValid(),
	}
	if !g.IsEmpty() {
		b := g.Bounds()
		p.Bounds = domain.Bounds{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
	}
	return p, nil
}

// toOrb converts areal GEOS geometries (and collections of them) to orb.
func toOrb(g *geos.Geom) (orb.Geometry, error) {
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return toOrbPolygon(g), nil
	case geos.TypeIDMultiPolygon:
		mp := make(orb.MultiPolygon, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			mp = append(mp, toOrbPolygon(g.Geometry(i)))
		}
		return mp, nil
	case geos.TypeIDGeometryCollection:
		c := make(orb.Collection, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			member, err := toOrb(g.Geometry(i))
			if err != nil {
				continue
			}
			c = append(c, member)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.Type())
	}
}

func toOrbPolygon(g *geos.Geom) orb.Polygon {
	if g.IsEmpty() {
		return orb.Polygon{}
	}
	poly := orb.Polygon{toOrbRing(g.ExteriorRing())}
	for i := 0; i < g.NumInteriorRings(); i++ {
		poly = append(poly, toOrbRing(g.InteriorRing(i)))
	}
	return poly
}

func toOrbRing(g *geos.Geom) orb.Ring {
	coords := g.CoordSeq().ToCoords()
	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		ring[i] = orb.Point{c[0], c[1]}
	}
	return ring
}
