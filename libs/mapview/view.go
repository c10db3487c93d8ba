package mapview

import (
	"errors"
	"fmt"
)

var ErrUnknownDataset = errors.New("unknown dataset")

// View is the state of one mounted map page: base layer, overlays, viewport,
// and the color table of each dataset. It is not safe for concurrent use.
type View struct {
	Viewport Viewport

	surface   *MemorySurface
	layers    *LayerController
	renderers map[Dataset]*Renderer
	legends   map[Dataset][]LegendEntry
	heat      [][3]float64
}

// OverlayState is the toggle state of one overlay.
type OverlayState struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// ViewState is a serializable snapshot of a View.
type ViewState struct {
	BaseLayer  BaseLayer                 `json:"base_layer"`
	Overlays   []OverlayState            `json:"overlays"`
	Viewport   Viewport                  `json:"viewport"`
	Legends    map[Dataset][]LegendEntry `json:"legends"`
	HeatPoints [][3]float64              `json:"heat_points,omitempty"`
}

// NewView mounts a view on the default base layer with every overlay off.
func NewView() *View {
	surface := NewMemorySurface()
	view := &View{surface: surface, layers: NewLayerController(surface)}
	view.Reset()
	return view
}

// Reset returns the view to its mounted state. Color assignments are dropped.
func (v *View) Reset() {
	for _, overlay := range Overlays {
		_, _ = v.layers.SetLayerActive(overlay.ID, false)
	}
	_ = v.layers.SetBaseLayer(DefaultBaseLayer)
	v.Viewport = DefaultViewport
	v.renderers = map[Dataset]*Renderer{
		DatasetTrees: NewRenderer(DatasetTrees),
		DatasetSeeds: NewRenderer(DatasetSeeds),
	}
	v.legends = make(map[Dataset][]LegendEntry)
	v.heat = nil
}

// Render draws fc as dataset. A non-empty result fits the viewport to the
// rendered points. Rendering trees also refreshes the heatmap points.
func (v *View) Render(dataset Dataset, fc FeatureCollection) (RenderResult, error) {
	renderer, ok := v.renderers[dataset]
	if !ok {
		return RenderResult{}, fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
	}
	result := renderer.Render(fc)
	v.legends[dataset] = result.Legend
	if !result.NoData {
		v.Viewport.Fit(result.Bounds)
	}
	if dataset == DatasetTrees {
		v.heat = HeatPoints(fc)
	}
	return result, nil
}

// SetLayerActive toggles an overlay.
func (v *View) SetLayerActive(name string, active bool) (bool, error) {
	return v.layers.SetLayerActive(name, active)
}

// SetBaseLayer switches the base tile layer.
func (v *View) SetBaseLayer(name string) error {
	return v.layers.SetBaseLayer(name)
}

// Surface exposes the attached layers.
func (v *View) Surface() *MemorySurface {
	return v.surface
}

// State snapshots the view.
func (v *View) State() ViewState {
	base, _ := FindBaseLayer(v.layers.BaseLayer())
	overlays := make([]OverlayState, 0, len(Overlays))
	for _, overlay := range Overlays {
		overlays = append(overlays, OverlayState{
			ID:     overlay.ID,
			Label:  overlay.Label,
			Active: v.layers.Active(overlay.ID),
		})
	}
	legends := make(map[Dataset][]LegendEntry, len(v.legends))
	for dataset, legend := range v.legends {
		legends[dataset] = legend
	}
	state := ViewState{
		BaseLayer: base,
		Overlays:  overlays,
		Viewport:  v.Viewport,
		Legends:   legends,
	}
	if v.layers.Active(OverlayHeatmap) {
		state.HeatPoints = v.heat
	}
	return state
}

// HeatPoints returns [lat, lng, intensity] for every locatable feature, with
// intensity population/10.
func HeatPoints(fc FeatureCollection) [][3]float64 {
	points := make([][3]float64, 0, len(fc.Features))
	for _, feature := range fc.Features {
		lat, lng, err := feature.Point()
		if err != nil {
			continue
		}
		points = append(points, [3]float64{lat, lng, feature.NumberProperty("population") / 10})
	}
	return points
}
