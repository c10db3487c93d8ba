package mapview

import "fmt"

// Dataset selects how features are discriminated, colored and summarized.
type Dataset string

const (
	DatasetTrees Dataset = "trees"
	DatasetSeeds Dataset = "seeds"
)

// Discriminator returns the property that picks a feature's color.
func (d Dataset) Discriminator() string {
	if d == DatasetSeeds {
		return "germination_status"
	}
	return "common_name"
}

// Marker is a rendered point. LatLng is in map order, [lat, lng].
type Marker struct {
	ID     string     `json:"id"`
	LatLng [2]float64 `json:"latlng"`
	Key    string     `json:"key"`
	Color  string     `json:"color"`
	Popup  Popup      `json:"popup"`
}

// Popup summarizes a feature's properties.
type Popup struct {
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle,omitempty"`
	Rows     []PopupRow `json:"rows"`
}

// PopupRow is one label/value line of a popup.
type PopupRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SkippedFeature records a feature that could not be rendered.
type SkippedFeature struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// RenderResult is the outcome of one render pass.
type RenderResult struct {
	Dataset Dataset          `json:"dataset"`
	Markers []Marker         `json:"markers"`
	Skipped []SkippedFeature `json:"skipped"`
	Legend  []LegendEntry    `json:"legend"`
	Bounds  *Bounds          `json:"bounds,omitempty"`
	NoData  bool             `json:"no_data"`
}

// Renderer converts feature collections of one dataset into markers.
type Renderer struct {
	Dataset Dataset
	Colors  *ColorAssigner
}

// NewRenderer returns a renderer for dataset with a fresh color table.
func NewRenderer(dataset Dataset) *Renderer {
	colors := NewColorAssigner(SpeciesPalette)
	if dataset == DatasetSeeds {
		colors = NewGerminationAssigner()
	}
	return &Renderer{Dataset: dataset, Colors: colors}
}

// Render places every feature with a valid point geometry. Features with
// missing or malformed geometry are skipped individually. The legend is rebuilt
// from the color table after the pass.
func (r *Renderer) Render(fc FeatureCollection) RenderResult {
	result := RenderResult{
		Dataset: r.Dataset,
		Markers: make([]Marker, 0, len(fc.Features)),
		Skipped: []SkippedFeature{},
	}
	var bounds Bounds
	key := r.Dataset.Discriminator()

	for idx, feature := range fc.Features {
		lat, lng, err := feature.Point()
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedFeature{
				Index:  idx,
				ID:     feature.StringProperty("id"),
				Reason: err.Error(),
			})
			continue
		}

		value := feature.StringProperty(key)
		color := FallbackColor
		if value != "" {
			color = r.Colors.Assign(value)
		}

		result.Markers = append(result.Markers, Marker{
			ID:     feature.StringProperty("id"),
			LatLng: [2]float64{lat, lng},
			Key:    value,
			Color:  color,
			Popup:  r.popup(feature),
		})
		bounds.Extend(lat, lng)
	}

	result.Legend = r.Colors.Legend()
	if len(result.Markers) == 0 {
		result.NoData = true
		return result
	}
	result.Bounds = &bounds
	return result
}

func (r *Renderer) popup(feature Feature) Popup {
	if r.Dataset == DatasetSeeds {
		return Popup{
			Title:    valueOr(feature.StringProperty("common_name"), "Seed planting"),
			Subtitle: feature.StringProperty("scientific_name"),
			Rows: nonEmptyRows(
				PopupRow{"Quantity", feature.StringProperty("quantity")},
				PopupRow{"Planted", feature.StringProperty("planting_date")},
				PopupRow{"Germination", feature.StringProperty("germination_status")},
				PopupRow{"Survival rate", percent(feature, "survival_rate")},
				PopupRow{"Location", feature.StringProperty("location")},
			),
		}
	}
	return Popup{
		Title:    valueOr(feature.StringProperty("common_name"), "Tree record"),
		Subtitle: feature.StringProperty("scientific_name"),
		Rows: nonEmptyRows(
			PopupRow{"Family", feature.StringProperty("family")},
			PopupRow{"Population", feature.StringProperty("population")},
			PopupRow{"Health", feature.StringProperty("health_status")},
			PopupRow{"Healthy / Good / Bad / Deceased", healthLine(feature)},
			PopupRow{"Year", feature.StringProperty("year")},
			PopupRow{"Location", feature.StringProperty("location")},
		),
	}
}

func healthLine(feature Feature) string {
	if _, ok := feature.Properties["healthy_count"]; !ok {
		return ""
	}
	return fmt.Sprintf("%s / %s / %s / %s",
		valueOr(feature.StringProperty("healthy_count"), "0"),
		valueOr(feature.StringProperty("good_count"), "0"),
		valueOr(feature.StringProperty("bad_count"), "0"),
		valueOr(feature.StringProperty("deceased_count"), "0"),
	)
}

func percent(feature Feature, key string) string {
	value := feature.StringProperty(key)
	if value == "" {
		return ""
	}
	return value + "%"
}

func nonEmptyRows(rows ...PopupRow) []PopupRow {
	out := make([]PopupRow, 0, len(rows))
	for _, row := range rows {
		if row.Value != "" {
			out = append(out, row)
		}
	}
	return out
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
