package application

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jobrunner/geotools/internal/domain"
)

const noBuildingsMessage = "No buildings found in OpenStreetMap for this area. Try a larger area or different location."

var noBuildingsSuggestions = []string{
	"Try a larger area",
	"Check if coordinates are correct",
	"This area might not have buildings mapped in OSM",
}

// FetchEnvelope converts a fetch outcome into the response envelope and HTTP status.
func FetchEnvelope(result domain.FetchResult, polygon domain.Polygon) (domain.ResultEnvelope, int) {
	switch result.Classification {
	case domain.FetchData:
		return domain.ResultEnvelope{
			Status:  domain.StatusSuccess,
			Message: fmt.Sprintf("Successfully fetched %d buildings", result.Count),
			Data:    result.Features,
			Stats:   buildingStats(result.Count, polygon),
		}, http.StatusOK

	case domain.FetchEmpty:
		return domain.ResultEnvelope{
			Status:  domain.StatusNoData,
			Message: noBuildingsMessage,
			Data: domain.EmptyCollection{
				Type:     "FeatureCollection",
				Features: []interface{}{},
				Properties: map[string]interface{}{
					"message":     "No buildings found in OpenStreetMap for this area",
					"suggestions": noBuildingsSuggestions,
				},
			},
			Stats: buildingStats(0, polygon),
		}, http.StatusOK

	default:
		return ErrorEnvelope("Error fetching buildings", result.Err)
	}
}

// ErrorEnvelope converts an error into an envelope with status 0.
func ErrorEnvelope(prefix string, err error) (domain.ResultEnvelope, int) {
	msg := prefix
	if err != nil {
		msg = fmt.Sprintf("%s: %s", prefix, err.Error())
	}
	return domain.ResultEnvelope{
		Status:  domain.StatusNoData,
		Message: msg,
	}, StatusCode(err)
}

// StatusCode maps an error to its HTTP status code.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func buildingStats(count int, polygon domain.Polygon) *domain.BuildingStats {
	return &domain.BuildingStats{
		TotalBuildings: count,
		AreaSqDegrees:  polygon.Area,
		Bounds:         polygon.Bounds.Slice(),
	}
}
