package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"negrostrees/libs/mapview"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var viewerSession = UserSession{Email: "viewer@example.com", Role: rolePublicUser}

func mountTestView(t *testing.T, app *App, router http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views", "", viewerSession))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, ok := decodeBody(t, rec)["view_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func TestMountMapViewStartsWithDefaults(t *testing.T) {
	app, router := newTestServer(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views", "", viewerSession))
	require.Equal(t, http.StatusCreated, rec.Code)

	state := decodeBody(t, rec)["state"].(map[string]any)
	base := state["base_layer"].(map[string]any)
	assert.Equal(t, mapview.DefaultBaseLayer, base["name"])
	for _, overlay := range state["overlays"].([]any) {
		assert.Equal(t, false, overlay.(map[string]any)["active"])
	}
	assert.Equal(t, 1, app.mapViews.len())
}

func TestRenderMapViewWithInlineGeoJSON(t *testing.T) {
	app, router := newTestServer(t)
	id := mountTestView(t, app, router)

	body := `{"dataset":"trees","geojson":{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[123.2,9.3]},"properties":{"id":"a","common_name":"Narra","population":20}},
		{"type":"Feature","geometry":null,"properties":{"id":"b","common_name":"Molave"}},
		{"type":"Feature","geometry":"garbage","properties":{"id":"d","common_name":"Molave"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[123.1,9.1]},"properties":{"id":"c","common_name":"Narra"}}
	]}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/render", body, viewerSession))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeBody(t, rec)["result"].(map[string]any)
	markers := result["markers"].([]any)
	require.Len(t, markers, 2)
	first := markers[0].(map[string]any)
	second := markers[1].(map[string]any)
	assert.Equal(t, first["color"], second["color"], "same species must share a color")
	assert.Equal(t, []any{9.3, 123.2}, first["latlng"])

	skipped := result["skipped"].([]any)
	require.Len(t, skipped, 2)
	assert.Equal(t, "b", skipped[0].(map[string]any)["id"])
	assert.Equal(t, "d", skipped[1].(map[string]any)["id"])
	assert.Equal(t, false, result["no_data"])
}

func TestRenderMapViewLoadsStoredSeeds(t *testing.T) {
	app, router := newTestServer(t)
	var gotFilters map[string]any
	app.seedList = func(ctx context.Context, filters map[string]any) ([]SeedRecord, error) {
		gotFilters = filters
		return []SeedRecord{}, nil
	}
	id := mountTestView(t, app, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/render", `{"dataset":"seeds","species_id":4}`, viewerSession))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, gotFilters["species_id"])

	body := decodeBody(t, rec)
	assert.Equal(t, "No data available for the selected filters", body["message"])
	assert.Equal(t, true, body["result"].(map[string]any)["no_data"])
}

func TestRenderMapViewRejectsUnknownDataset(t *testing.T) {
	app, router := newTestServer(t)
	id := mountTestView(t, app, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/render", `{"dataset":"shrubs"}`, viewerSession))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_dataset", decodeBody(t, rec)["code"])
}

func TestRenderMapViewPropagatesStoreError(t *testing.T) {
	app, router := newTestServer(t)
	app.treeList = func(ctx context.Context, filters map[string]any) ([]TreeRecord, error) {
		return nil, errors.New("database unavailable")
	}
	id := mountTestView(t, app, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/render", `{}`, viewerSession))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestToggleMapLayerIsIdempotent(t *testing.T) {
	app, router := newTestServer(t)
	id := mountTestView(t, app, router)

	toggle := func(body string) map[string]any {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/layers", body, viewerSession))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody(t, rec)
	}

	first := toggle(`{"name":"protected","active":true}`)
	assert.Equal(t, true, first["changed"])
	second := toggle(`{"name":"protected","active":true}`)
	assert.Equal(t, false, second["changed"])

	entry, ok := app.mapViews.get(id, time.Now())
	require.True(t, ok)
	assert.Equal(t, 1, entry.view.Surface().OverlayCount("protected"))
}

func TestToggleMapLayerRejectsUnknownLayer(t *testing.T) {
	app, router := newTestServer(t)
	id := mountTestView(t, app, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/layers", `{"name":"rivers","active":true}`, viewerSession))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_layer", decodeBody(t, rec)["code"])
}

func TestSwitchBaseLayer(t *testing.T) {
	app, router := newTestServer(t)
	id := mountTestView(t, app, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/base", `{"name":"satellite"}`, viewerSession))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	base := decodeBody(t, rec)["state"].(map[string]any)["base_layer"].(map[string]any)
	assert.Equal(t, "satellite", base["name"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodPost, "/api/map/views/"+id+"/base", `{"name":"watercolor"}`, viewerSession))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_base_layer", decodeBody(t, rec)["code"])
}

func TestUnmountMapView(t *testing.T) {
	app, router := newTestServer(t)
	id := mountTestView(t, app, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodDelete, "/api/map/views/"+id, "", viewerSession))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, app.mapViews.len())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(t, app, http.MethodGet, "/api/map/views/"+id, "", viewerSession))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "map_view_not_found", decodeBody(t, rec)["code"])
}

func TestMapViewStorePrunesIdleViews(t *testing.T) {
	store := newMapViewStore()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	idle, _ := store.mount(start)
	active, _ := store.mount(start)

	_, ok := store.get(active, start.Add(20*time.Minute))
	require.True(t, ok)

	removed := store.prune(start.Add(35*time.Minute), 30*time.Minute)
	assert.Equal(t, 1, removed)
	_, ok = store.get(idle, start.Add(35*time.Minute))
	assert.False(t, ok)
	_, ok = store.get(active, start.Add(35*time.Minute))
	assert.True(t, ok)
}
