package mapview

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func treeFeature(id, name string, lat, lng float64, population int) Feature {
	return NewPointFeature(lat, lng, map[string]any{
		"id":              id,
		"common_name":     name,
		"scientific_name": name + " sp.",
		"population":      float64(population),
		"healthy_count":   float64(population),
		"good_count":      float64(0),
		"bad_count":       float64(0),
		"deceased_count":  float64(0),
	})
}

func TestColorAssignerFirstSeenOrderAndWraparound(t *testing.T) {
	palette := []string{"#a", "#b", "#c"}
	assigner := NewColorAssigner(palette)

	assert.Equal(t, "#a", assigner.Assign("narra"))
	assert.Equal(t, "#b", assigner.Assign("molave"))
	assert.Equal(t, "#a", assigner.Assign("narra"))
	assert.Equal(t, "#c", assigner.Assign("kamagong"))
	assert.Equal(t, "#a", assigner.Assign("almaciga"))
	assert.Equal(t, 4, assigner.Len())

	legend := assigner.Legend()
	require.Len(t, legend, 4)
	assert.Equal(t, LegendEntry{Label: "narra", Color: "#a"}, legend[0])
	assert.Equal(t, LegendEntry{Label: "almaciga", Color: "#a"}, legend[3])
}

func TestColorAssignmentIsPureFunctionOfArrivalOrder(t *testing.T) {
	sequence := []string{"narra", "molave", "narra", "yakal", "kamagong", "molave"}
	first := NewColorAssigner(nil)
	second := NewColorAssigner(nil)
	for _, value := range sequence {
		first.Assign(value)
	}
	for _, value := range sequence {
		second.Assign(value)
	}
	assert.Equal(t, first.Legend(), second.Legend())
}

func TestGerminationAssignerUsesFixedLegend(t *testing.T) {
	assigner := NewGerminationAssigner()
	assert.Equal(t, "#228B22", assigner.Assign("fully_germinated"))
	assert.Equal(t, len(GerminationStatuses), assigner.Len())

	assigner.Reset()
	assert.Zero(t, assigner.Len())
	_, ok := assigner.Lookup("failed")
	assert.False(t, ok)
}

func TestRenderSwapsCoordinatesAndFitsBounds(t *testing.T) {
	renderer := NewRenderer(DatasetTrees)
	result := renderer.Render(NewFeatureCollection([]Feature{
		treeFeature("t1", "Narra", 10.2, 123.1, 20),
		treeFeature("t2", "Molave", 9.4, 122.9, 5),
	}))

	require.Len(t, result.Markers, 2)
	assert.Equal(t, [2]float64{10.2, 123.1}, result.Markers[0].LatLng)
	assert.Equal(t, SpeciesPalette[0], result.Markers[0].Color)
	assert.Equal(t, SpeciesPalette[1], result.Markers[1].Color)
	assert.Equal(t, "Narra", result.Markers[0].Popup.Title)
	assert.False(t, result.NoData)
	require.NotNil(t, result.Bounds)
	assert.Equal(t, 9.4, result.Bounds.South)
	assert.Equal(t, 10.2, result.Bounds.North)
	assert.Equal(t, 122.9, result.Bounds.West)
	assert.Equal(t, 123.1, result.Bounds.East)
	assert.Len(t, result.Legend, 2)
}

func TestRenderSkipsBadGeometryOnly(t *testing.T) {
	raw := `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [123.0, 10.0]}, "properties": {"id": "ok-1", "common_name": "Narra"}},
			{"type": "Feature", "properties": {"id": "missing", "common_name": "Ghost"}},
			{"type": "Feature", "geometry": null, "properties": {"id": "null"}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": ["x", "y"]}, "properties": {"id": "text"}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [123.0]}, "properties": {"id": "short"}},
			{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[1,2]]]}, "properties": {"id": "poly"}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [123.4, 10.5]}, "properties": {"id": "ok-2", "common_name": "Molave"}}
		]
	}`
	var fc FeatureCollection
	require.NoError(t, json.Unmarshal([]byte(raw), &fc))

	result := NewRenderer(DatasetTrees).Render(fc)
	require.Len(t, result.Markers, 2)
	assert.Equal(t, "ok-1", result.Markers[0].ID)
	assert.Equal(t, "ok-2", result.Markers[1].ID)
	assert.Len(t, result.Skipped, 5)
	assert.Equal(t, "missing", result.Skipped[0].ID)
	// "Ghost" was never drawn, so it never got a color.
	assert.Len(t, result.Legend, 2)
}

func TestRenderSkipsNonObjectGeometry(t *testing.T) {
	raw := `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [123.0, 10.0]}, "properties": {"id": "ok-1", "common_name": "Narra"}},
			{"type": "Feature", "geometry": "garbage", "properties": {"id": "string"}},
			{"type": "Feature", "geometry": [123, 10], "properties": {"id": "array"}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [123.1, 9.9]}, "properties": "not an object"},
			42,
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [123.4, 10.5]}, "properties": {"id": "ok-2", "common_name": "Molave"}}
		]
	}`
	var fc FeatureCollection
	require.NoError(t, json.Unmarshal([]byte(raw), &fc))
	require.Len(t, fc.Features, 6)

	result := NewRenderer(DatasetTrees).Render(fc)
	require.Len(t, result.Markers, 3)
	assert.Equal(t, "ok-1", result.Markers[0].ID)
	assert.Equal(t, "ok-2", result.Markers[2].ID)
	require.Len(t, result.Skipped, 3)
	assert.Equal(t, "string", result.Skipped[0].ID)
	assert.Equal(t, "array", result.Skipped[1].ID)
	assert.Equal(t, 4, result.Skipped[2].Index)
}

func TestRenderEmptyCollectionReportsNoData(t *testing.T) {
	view := NewView()
	before := view.Viewport
	result, err := view.Render(DatasetTrees, NewFeatureCollection(nil))
	require.NoError(t, err)
	assert.True(t, result.NoData)
	assert.Nil(t, result.Bounds)
	assert.Equal(t, before, view.Viewport)
}

func TestLegendKeepsEntriesAcrossFilteredRenders(t *testing.T) {
	view := NewView()
	_, err := view.Render(DatasetTrees, NewFeatureCollection([]Feature{
		treeFeature("a", "Narra", 10, 123, 1),
		treeFeature("b", "Molave", 10.1, 123.1, 1),
	}))
	require.NoError(t, err)

	filtered, err := view.Render(DatasetTrees, NewFeatureCollection([]Feature{
		treeFeature("b", "Molave", 10.1, 123.1, 1),
	}))
	require.NoError(t, err)
	assert.Len(t, filtered.Legend, 2)
	assert.Equal(t, SpeciesPalette[1], filtered.Markers[0].Color)

	view.Reset()
	remounted, err := view.Render(DatasetTrees, NewFeatureCollection([]Feature{
		treeFeature("b", "Molave", 10.1, 123.1, 1),
	}))
	require.NoError(t, err)
	assert.Len(t, remounted.Legend, 1)
	assert.Equal(t, SpeciesPalette[0], remounted.Markers[0].Color)
}

func TestSeedRenderUsesGerminationColors(t *testing.T) {
	view := NewView()
	result, err := view.Render(DatasetSeeds, NewFeatureCollection([]Feature{
		NewPointFeature(10, 123, map[string]any{"id": "s1", "germination_status": "failed", "common_name": "Narra"}),
	}))
	require.NoError(t, err)
	assert.Equal(t, "#A52A2A", result.Markers[0].Color)
	assert.Equal(t, "failed", result.Markers[0].Key)

	_, err = view.Render(Dataset("shrubs"), NewFeatureCollection(nil))
	assert.True(t, errors.Is(err, ErrUnknownDataset))
}

func TestSetLayerActiveIsIdempotent(t *testing.T) {
	surface := NewMemorySurface()
	controller := NewLayerController(surface)

	changed, err := controller.SetLayerActive(OverlayHeatmap, true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = controller.SetLayerActive(OverlayHeatmap, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, surface.OverlayCount(OverlayHeatmap))

	changed, err = controller.SetLayerActive(OverlayHeatmap, false)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = controller.SetLayerActive(OverlayHeatmap, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, surface.OverlayCount(OverlayHeatmap))

	_, err = controller.SetLayerActive("volcanoes", true)
	assert.True(t, errors.Is(err, ErrUnknownLayer))
}

func TestSetBaseLayerReplacesInsteadOfStacking(t *testing.T) {
	surface := NewMemorySurface()
	controller := NewLayerController(surface)

	require.NoError(t, controller.SetBaseLayer("dark"))
	require.NoError(t, controller.SetBaseLayer("satellite"))
	require.NoError(t, controller.SetBaseLayer("satellite"))

	bases := surface.Bases()
	require.Len(t, bases, 1)
	assert.Equal(t, "satellite", bases[0].Name)
	assert.Equal(t, []string{"add-base:dark", "remove-base:dark", "add-base:satellite"}, surface.Ops())

	err := controller.SetBaseLayer("watercolor")
	assert.True(t, errors.Is(err, ErrUnknownBaseLayer))
	assert.Equal(t, "satellite", controller.BaseLayer())
}

func TestViewStateExposesHeatPointsOnlyWhenActive(t *testing.T) {
	view := NewView()
	_, err := view.Render(DatasetTrees, NewFeatureCollection([]Feature{
		treeFeature("a", "Narra", 10, 123, 50),
	}))
	require.NoError(t, err)
	assert.Nil(t, view.State().HeatPoints)

	_, err = view.SetLayerActive(OverlayHeatmap, true)
	require.NoError(t, err)
	state := view.State()
	assert.Equal(t, [][3]float64{{10, 123, 5}}, state.HeatPoints)
	assert.Equal(t, "dark", state.BaseLayer.Name)
	assert.True(t, state.Overlays[0].Active)

	view.Reset()
	assert.Empty(t, view.Surface().ActiveOverlays())
	assert.Equal(t, DefaultViewport, view.Viewport)
}
