package mapview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// FeatureCollection is a GeoJSON feature collection as served by the data
// endpoints. PinStyle is the optional default marker style attached by the API.
type FeatureCollection struct {
	Type     string         `json:"type"`
	Features []Feature      `json:"features"`
	PinStyle map[string]any `json:"pin_style,omitempty"`
}

// Feature is one GeoJSON feature. Geometry may be nil.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`

	// decodeErr is set when the feature or its geometry was not a JSON object.
	decodeErr error
}

// Geometry keeps the raw coordinates so that one malformed feature does not
// fail decoding of the whole collection.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// UnmarshalJSON never fails on a malformed feature. A feature, geometry or
// properties value of the wrong JSON kind is kept and reported by Point.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       json.RawMessage `json:"type"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties json.RawMessage `json:"properties"`
	}
	*f = Feature{}
	if err := json.Unmarshal(data, &raw); err != nil {
		f.decodeErr = fmt.Errorf("feature is not an object: %w", err)
		return nil
	}
	_ = json.Unmarshal(raw.Type, &f.Type)
	if err := json.Unmarshal(raw.Properties, &f.Properties); err != nil {
		f.Properties = nil
	}
	if len(raw.Geometry) == 0 || string(raw.Geometry) == "null" {
		return nil
	}
	var geometry Geometry
	if err := json.Unmarshal(raw.Geometry, &geometry); err != nil {
		f.decodeErr = fmt.Errorf("invalid geometry: %w", err)
		return nil
	}
	f.Geometry = &geometry
	return nil
}

// NewPointFeature builds a Point feature at lng/lat in GeoJSON order.
func NewPointFeature(lat, lng float64, properties map[string]any) Feature {
	coords, _ := json.Marshal([]float64{lng, lat})
	return Feature{
		Type:       "Feature",
		Geometry:   &Geometry{Type: "Point", Coordinates: coords},
		Properties: properties,
	}
}

// NewFeatureCollection wraps features. A nil slice is encoded as [].
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

var ErrMissingGeometry = errors.New("feature has no geometry")

// Point returns the feature position as lat, lng.
func (f Feature) Point() (float64, float64, error) {
	if f.decodeErr != nil {
		return 0, 0, f.decodeErr
	}
	if f.Geometry == nil || len(f.Geometry.Coordinates) == 0 || string(f.Geometry.Coordinates) == "null" {
		return 0, 0, ErrMissingGeometry
	}
	if f.Geometry.Type != "" && f.Geometry.Type != "Point" {
		return 0, 0, fmt.Errorf("unsupported geometry type %q", f.Geometry.Type)
	}
	var coords []float64
	if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
		return 0, 0, fmt.Errorf("invalid coordinates: %w", err)
	}
	if len(coords) < 2 {
		return 0, 0, fmt.Errorf("expected [lng, lat], got %d values", len(coords))
	}
	lng, lat := coords[0], coords[1]
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range: [%v, %v]", lng, lat)
	}
	return lat, lng, nil
}

// StringProperty returns properties[key] formatted as a string, or "".
func (f Feature) StringProperty(key string) string {
	value, ok := f.Properties[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// NumberProperty returns properties[key] as a float, or 0.
func (f Feature) NumberProperty(key string) float64 {
	switch v := f.Properties[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		parsed, _ := v.Float64()
		return parsed
	default:
		return 0
	}
}

func formatNumber(value float64) string {
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%g", value)
}
