package domain

// Envelope status values.
const (
	StatusNoData  = 0
	StatusSuccess = 1
)

// ResultEnvelope is the uniform response contract of the buildings tool.
// Status 1 only on success with data; 0 covers both no-data and error.
type ResultEnvelope struct {
	Status  int            `json:"Status"`
	Message string         `json:"Message"`
	Data    interface{}    `json:"Data,omitempty"`
	Stats   *BuildingStats `json:"Stats,omitempty"`
}

// BuildingStats summarises an extraction.
type BuildingStats struct {
	TotalBuildings int       `json:"total_buildings"`
	AreaSqDegrees  float64   `json:"area_sq_degrees"`
	Bounds         []float64 `json:"bounds"`
}

// EmptyCollection is the GeoJSON body returned when no features matched.
type EmptyCollection struct {
	Type       string                 `json:"type"`
	Features   []interface{}          `json:"features"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}
