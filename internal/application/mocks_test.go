package application

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geotools/internal/domain"
	"github.com/jobrunner/geotools/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// mockGeometry implements output.GeometryEngine for testing.
type mockGeometry struct {
	parsed     domain.Polygon
	parseErr   error
	repaired   domain.Polygon
	repairErr  error
	repairCall int
	lastWKT    string
}

func (m *mockGeometry) ParseWKT(wkt string) (domain.Polygon, error) {
	m.lastWKT = wkt
	if m.parseErr != nil {
		return domain.Polygon{}, m.parseErr
	}
	p := m.parsed
	p.WKT = wkt
	return p, nil
}

func (m *mockGeometry) MakeValid(p domain.Polygon) (domain.Polygon, error) {
	m.repairCall++
	if m.repairErr != nil {
		return domain.Polygon{}, m.repairErr
	}
	r := m.repaired
	r.WKT = p.WKT
	r.Repaired = true
	return r, nil
}

func validPolygon() domain.Polygon {
	g := square(77.2090, 28.6139, 77.2100, 28.6149)
	return domain.Polygon{
		Geometry: g,
		Bounds:   domain.Bounds{MinX: 77.2090, MinY: 28.6139, MaxX: 77.2100, MaxY: 28.6149},
		Area:     0.000001,
		Valid:    true,
	}
}

// mockSource implements output.FeatureSource for testing.
type mockSource struct {
	fc    *geojson.FeatureCollection
	err   error
	calls int
	polys []domain.Polygon
}

func (m *mockSource) Features(_ context.Context, p domain.Polygon, _ domain.TagPredicate) (*geojson.FeatureCollection, error) {
	m.calls++
	m.polys = append(m.polys, p)
	if m.err != nil {
		return nil, m.err
	}
	return m.fc, nil
}

func (m *mockSource) Name() string { return "mock" }

func buildingCollection(n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		x := 77.2090 + float64(i)*0.0001
		f := geojson.NewFeature(square(x, 28.6140, x+0.00005, 28.6141))
		f.Properties["building"] = "yes"
		fc.Append(f)
	}
	return fc
}

// mapCache implements output.FeatureCache for testing.
type mapCache struct {
	mu    sync.Mutex
	items map[string]*geojson.FeatureCollection
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]*geojson.FeatureCollection)}
}

func (c *mapCache) Get(_ context.Context, key string) (*geojson.FeatureCollection, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fc, ok := c.items[key]
	return fc, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, fc *geojson.FeatureCollection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = fc
	return nil
}

// mockEngine implements output.ProcessingEngine for testing.
// It writes one file per artifact name into the workspace.
type mockEngine struct {
	artifacts []string
	missing   []string
	err       error
	panicMsg  string
	requests  []domain.EngineRequest
	inputSeen bool
}

func (m *mockEngine) Run(_ context.Context, req domain.EngineRequest) (map[string]string, error) {
	m.requests = append(m.requests, req)
	if _, err := os.Stat(req.InputPath); err == nil {
		m.inputSeen = true
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string)
	for _, name := range m.artifacts {
		path := filepath.Join(req.WorkspaceDir, name+".csv")
		if err := os.WriteFile(path, []byte("lat,lon\n"), 0o600); err != nil {
			return nil, err
		}
		out[name] = path
	}
	for _, name := range m.missing {
		out[name] = filepath.Join(req.WorkspaceDir, name+".csv")
	}
	return out, nil
}

// mockStorage implements output.ArtifactStorage for testing.
type mockStorage struct {
	kind     output.StorageKind
	stored   map[string]map[string]string
	storeErr error
	files    map[string][]string
	handle   domain.ArtifactHandle
	resolve  error
}

func (m *mockStorage) Store(_ context.Context, workspaceID string, artifacts map[string]string) (map[string]string, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	if m.stored == nil {
		m.stored = make(map[string]map[string]string)
	}
	m.stored[workspaceID] = artifacts
	handles := make(map[string]string, len(artifacts))
	for name, path := range artifacts {
		handles[name] = filepath.Base(path)
	}
	return handles, nil
}

func (m *mockStorage) Resolve(_ context.Context, _, _ string) (domain.ArtifactHandle, error) {
	if m.resolve != nil {
		return domain.ArtifactHandle{}, m.resolve
	}
	return m.handle, nil
}

func (m *mockStorage) List(_ context.Context, dir string) ([]string, error) {
	files, ok := m.files[dir]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	return files, nil
}

func (m *mockStorage) Kind() output.StorageKind {
	if m.kind == "" {
		return output.StorageKindLocal
	}
	return m.kind
}

// recordingLedger implements output.JobLedger for testing.
type recordingLedger struct {
	begun    []domain.JobRecord
	finished []domain.JobRecord
}

func (l *recordingLedger) Begin(_ context.Context, rec domain.JobRecord) error {
	l.begun = append(l.begun, rec)
	return nil
}

func (l *recordingLedger) Finish(_ context.Context, rec domain.JobRecord) error {
	l.finished = append(l.finished, rec)
	return nil
}

func (l *recordingLedger) Get(_ context.Context, id string) (*domain.JobRecord, error) {
	for i := len(l.finished) - 1; i >= 0; i-- {
		if l.finished[i].ID == id {
			return &l.finished[i], nil
		}
	}
	return nil, domain.ErrJobNotFound
}

// recordingPublisher implements output.EventPublisher for testing.
type recordingPublisher struct {
	events []domain.JobEvent
}

func (p *recordingPublisher) PublishJobFinished(_ context.Context, ev domain.JobEvent) error {
	p.events = append(p.events, ev)
	return nil
}

// countingMetrics records the calls relevant to tests.
type countingMetrics struct {
	output.NoOpMetrics
	mu      sync.Mutex
	fetches map[string]int
	jobs    map[string]int
	hits    int
	tracked int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{fetches: map[string]int{}, jobs: map[string]int{}}
}

func (m *countingMetrics) IncFetchCount(classification string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[classification]++
}

func (m *countingMetrics) IncCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	}
}

func (m *countingMetrics) IncJobCount(method string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + ":failed"
	if success {
		key = method + ":ok"
	}
	m.jobs[key]++
}

func (m *countingMetrics) SetWorkspacesTracked(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = count
}
