package application

import (
	"context"
	"log/slog"

	"github.com/jobrunner/geotools/internal/domain"
)

// SampleWKT is a small area in Delhi with mapped buildings.
const SampleWKT = "POLYGON((77.2090 28.6139, 77.2100 28.6139, 77.2100 28.6149, 77.2090 28.6149, 77.2090 28.6139))"

// BuildingService runs the building extraction pipeline.
type BuildingService struct {
	ingestor *Ingestor
	fetcher  *FeatureFetcher
	logger   *slog.Logger
}

// NewBuildingService creates a new building service.
func NewBuildingService(ingestor *Ingestor, fetcher *FeatureFetcher, logger *slog.Logger) *BuildingService {
	return &BuildingService{
		ingestor: ingestor,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// Generate parses, repairs and fetches buildings for payload.
func (s *BuildingService) Generate(ctx context.Context, payload domain.GeometrySpec) (domain.ResultEnvelope, int) {
	polygon, err := s.ingestor.Parse(payload)
	if err != nil {
		s.logger.Warn("geometry parsing failed", "error", err)
		return ErrorEnvelope("Invalid geometry", err)
	}

	polygon = s.ingestor.Repair(polygon)

	result := s.fetcher.Fetch(ctx, polygon, domain.BuildingTags)
	return FetchEnvelope(result, polygon)
}

// Sample runs the pipeline against SampleWKT.
func (s *BuildingService) Sample(ctx context.Context) (domain.ResultEnvelope, int) {
	return s.Generate(ctx, domain.GeometrySpec{"WKT": SampleWKT})
}
