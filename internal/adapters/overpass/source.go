// Package overpass implements the feature source on top of the Overpass API.
package overpass

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/serjvanilla/go-overpass"

	"github.com/jobrunner/geotools/internal/domain"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds Overpass source configuration.
type Config struct {
	Endpoint    string
	Timeout     time.Duration
	MaxParallel int
}

// Source implements FeatureSource against an Overpass endpoint.
type Source struct {
	endpoint string
	timeout  time.Duration
	http     Doer
	sem      chan struct{}
}

// NewSource creates a new Overpass source. A nil doer uses an
// *http.Client with the configured timeout.
func NewSource(cfg Config, doer Doer) *Source {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &Source{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		http:     doer,
		sem:      make(chan struct{}, cfg.MaxParallel),
	}
}

// Name implements FeatureSource.
func (s *Source) Name() string {
	return "overpass"
}

// Features implements FeatureSource.
func (s *Source) Features(ctx context.Context, polygon domain.Polygon, tags domain.TagPredicate) (*geojson.FeatureCollection, error) {
	query, err := BuildQuery(polygon, tags, s.timeout)
	if err != nil {
		return nil, err
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The client is bound to ctx so cancellation reaches the HTTP request.
	client := overpass.NewWithSettings(s.endpoint, 1, ctxDoer{ctx: ctx, next: s.http})
	result, err := client.Query(query)
	if err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}

	return toFeatureCollection(&result, tags), nil
}

// ctxDoer is the overpass.HTTPClient used per query. It attaches ctx to
// every outgoing request.
type ctxDoer struct {
	ctx  context.Context
	next Doer
}

var _ overpass.HTTPClient = ctxDoer{}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.next.Do(req.WithContext(d.ctx))
}

// PostForm sends data as an urlencoded POST body.
func (d ctxDoer) PostForm(u string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, u, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return d.next.Do(req)
}

// BuildQuery renders the Overpass QL query for the polygon's exterior rings.
func BuildQuery(polygon domain.Polygon, tags domain.TagPredicate, timeout time.Duration) (string, error) {
	rings := polygon.Rings()
	if len(rings) == 0 {
		return "", fmt.Errorf("polygon has no rings: %w", domain.ErrInvalidGeometry)
	}

	filter := tagFilter(tags)

	var b strings.Builder
	b.WriteString("[out:json]")
	if secs := int(timeout.Seconds()); secs > 0 {
		fmt.Fprintf(&b, "[timeout:%d]", secs)
	}
	b.WriteString(";(")
	for _, ring := range rings {
		poly := polyFilter(ring)
		fmt.Fprintf(&b, `way%s(poly:"%s");`, filter, poly)
		fmt.Fprintf(&b, `relation%s(poly:"%s");`, filter, poly)
	}
	b.WriteString(");out body;>;out skel qt;")
	return b.String(), nil
}

func tagFilter(tags domain.TagPredicate) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if v := tags[k]; v != "" {
			fmt.Fprintf(&b, "[%q=%q]", k, v)
		} else {
			fmt.Fprintf(&b, "[%q]", k)
		}
	}
	return b.String()
}

// polyFilter renders a ring as "lat lon lat lon ...". The closing point is dropped.
func polyFilter(ring orb.Ring) string {
	points := ring
	if len(points) > 1 && ring.Closed() {
		points = points[:len(points)-1]
	}
	parts := make([]string, 0, 2*len(points))
	for _, p := range points {
		parts = append(parts,
			strconv.FormatFloat(p.Lat(), 'f', -1, 64),
			strconv.FormatFloat(p.Lon(), 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

func matches(elementTags map[string]string, tags domain.TagPredicate) bool {
	if len(elementTags) == 0 {
		return false
	}
	for k, v := range tags {
		got, ok := elementTags[k]
		if !ok || (v != "" && got != v) {
			return false
		}
	}
	return true
}

// toFeatureCollection converts matching elements to GeoJSON features.
// Closed ways become polygons, multipolygon relations become multipolygons.
func toFeatureCollection(result *overpass.Result, tags domain.TagPredicate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, id := range sortedIDs(result.Nodes) {
		node := result.Nodes[id]
		if !matches(node.Tags, tags) {
			continue
		}
		fc.Append(newFeature(orb.Point{node.Lon, node.Lat}, "node", node.ID, node.Tags))
	}

	for _, id := range sortedIDs(result.Ways) {
		way := result.Ways[id]
		if !matches(way.Tags, tags) {
			continue
		}
		line := wayLine(way)
		if len(line) < 2 {
			continue
		}
		var g orb.Geometry = line
		if len(line) >= 4 && line[0] == line[len(line)-1] {
			g = orb.Polygon{orb.Ring(line)}
		}
		fc.Append(newFeature(g, "way", way.ID, way.Tags))
	}

	for _, id := range sortedIDs(result.Relations) {
		rel := result.Relations[id]
		if !matches(rel.Tags, tags) || rel.Tags["type"] != "multipolygon" {
			continue
		}
		mp := relationMultiPolygon(rel)
		if len(mp) == 0 {
			continue
		}
		fc.Append(newFeature(mp, "relation", rel.ID, rel.Tags))
	}

	return fc
}

func newFeature(g orb.Geometry, osmType string, id int64, tags map[string]string) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range tags {
		f.Properties[k] = v
	}
	f.Properties["osm_id"] = id
	f.Properties["osm_type"] = osmType
	return f
}

func wayLine(way *overpass.Way) orb.LineString {
	line := make(orb.LineString, 0, len(way.Nodes))
	for _, n := range way.Nodes {
		if n == nil {
			continue
		}
		line = append(line, orb.Point{n.Lon, n.Lat})
	}
	return line
}

// relationMultiPolygon assembles outer and inner member ways into polygons.
// Inner rings are assigned to the first outer ring containing them.
func relationMultiPolygon(rel *overpass.Relation) orb.MultiPolygon {
	var outerWays, innerWays []orb.LineString
	for _, m := range rel.Members {
		if m.Type != overpass.ElementTypeWay || m.Way == nil {
			continue
		}
		line := wayLine(m.Way)
		if len(line) < 2 {
			continue
		}
		if m.Role == "inner" {
			innerWays = append(innerWays, line)
		} else {
			outerWays = append(outerWays, line)
		}
	}

	outers := assembleRings(outerWays)
	inners := assembleRings(innerWays)

	mp := make(orb.MultiPolygon, 0, len(outers))
	for _, outer := range outers {
		mp = append(mp, orb.Polygon{outer})
	}
	for _, inner := range inners {
		for i := range mp {
			if planar.RingContains(mp[i][0], inner[0]) {
				mp[i] = append(mp[i], inner)
				break
			}
		}
	}
	return mp
}

// assembleRings joins way segments end to end into closed rings.
// Segments that never close are dropped.
func assembleRings(segments []orb.LineString) []orb.Ring {
	var rings []orb.Ring
	remaining := append([]orb.LineString(nil), segments...)

	for len(remaining) > 0 {
		current := append(orb.LineString(nil), remaining[0]...)
		remaining = remaining[1:]

		for current[0] != current[len(current)-1] {
			joined := false
			for i, seg := range remaining {
				last := current[len(current)-1]
				switch {
				case seg[0] == last:
					current = append(current, seg[1:]...)
				case seg[len(seg)-1] == last:
					current = append(current, reversed(seg)[1:]...)
				default:
					continue
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				joined = true
				break
			}
			if !joined {
				break
			}
		}

		if len(current) >= 4 && current[0] == current[len(current)-1] {
			rings = append(rings, orb.Ring(current))
		}
	}
	return rings
}

func reversed(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[len(ls)-1-i] = p
	}
	return out
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
