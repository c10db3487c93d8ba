package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"negrostrees/libs/mapview"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var errMapViewNotFound = notFound("map_view_not_found", "Map view not found or expired")

// mapViewStore holds the mounted map views of all clients. Each entry carries
// its own lock so requests against different views do not serialize.
type mapViewStore struct {
	mu    sync.Mutex
	views map[string]*mapViewEntry
}

type mapViewEntry struct {
	mu       sync.Mutex
	view     *mapview.View
	lastUsed time.Time
}

func newMapViewStore() *mapViewStore {
	return &mapViewStore{views: make(map[string]*mapViewEntry)}
}

func (s *mapViewStore) mount(now time.Time) (string, *mapViewEntry) {
	id := uuid.NewString()
	entry := &mapViewEntry{view: mapview.NewView(), lastUsed: now}
	s.mu.Lock()
	s.views[id] = entry
	s.mu.Unlock()
	return id, entry
}

func (s *mapViewStore) get(id string, now time.Time) (*mapViewEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.views[id]
	if ok {
		entry.mu.Lock()
		entry.lastUsed = now
		entry.mu.Unlock()
	}
	return entry, ok
}

func (s *mapViewStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.views[id]
	delete(s.views, id)
	return ok
}

func (s *mapViewStore) prune(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.views {
		entry.mu.Lock()
		idle := now.Sub(entry.lastUsed)
		entry.mu.Unlock()
		if idle >= ttl {
			delete(s.views, id)
			removed++
		}
	}
	return removed
}

func (s *mapViewStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

func (a *App) lookupMapView(c *gin.Context) (*mapViewEntry, bool) {
	entry, ok := a.mapViews.get(c.Param("id"), time.Now())
	if !ok {
		writeAPIError(c, errMapViewNotFound)
		return nil, false
	}
	return entry, true
}

func (a *App) mountMapViewHandler(c *gin.Context) {
	id, entry := a.mapViews.mount(time.Now())
	entry.mu.Lock()
	state := entry.view.State()
	entry.mu.Unlock()
	a.metrics.setMapViews(a.mapViews.len())
	c.JSON(http.StatusCreated, gin.H{"success": true, "view_id": id, "state": state})
}

func (a *App) mapViewStateHandler(c *gin.Context) {
	entry, ok := a.lookupMapView(c)
	if !ok {
		return
	}
	entry.mu.Lock()
	state := entry.view.State()
	entry.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "state": state})
}

func (a *App) renderMapViewHandler(c *gin.Context) {
	entry, ok := a.lookupMapView(c)
	if !ok {
		return
	}
	var payload struct {
		Dataset   string          `json:"dataset"`
		SpeciesID int             `json:"species_id"`
		GeoJSON   json.RawMessage `json:"geojson"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid JSON body"))
		return
	}
	dataset := mapview.Dataset(payload.Dataset)
	if payload.Dataset == "" {
		dataset = mapview.DatasetTrees
	}
	if dataset != mapview.DatasetTrees && dataset != mapview.DatasetSeeds {
		writeAPIError(c, badRequest("invalid_dataset", "Dataset must be trees or seeds"))
		return
	}

	var fc mapview.FeatureCollection
	if len(payload.GeoJSON) > 0 && string(payload.GeoJSON) != "null" {
		if err := json.Unmarshal(payload.GeoJSON, &fc); err != nil {
			writeAPIError(c, badRequest("invalid_geojson", "Invalid GeoJSON feature collection"))
			return
		}
	} else {
		loaded, err := a.treeCollectionForView(c, dataset, payload.SpeciesID)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		fc = loaded
	}

	entry.mu.Lock()
	result, err := entry.view.Render(dataset, fc)
	state := entry.view.State()
	entry.mu.Unlock()
	if err != nil {
		writeAPIError(c, badRequest("invalid_dataset", err.Error()))
		return
	}
	if len(result.Skipped) > 0 {
		a.log.Warn("skipped features without usable geometry", "view_id", c.Param("id"), "dataset", dataset, "count", len(result.Skipped))
	}

	response := gin.H{"success": true, "result": result, "state": state}
	if result.NoData {
		response["message"] = "No data available for the selected filters"
	}
	c.JSON(http.StatusOK, response)
}

func (a *App) toggleMapLayerHandler(c *gin.Context) {
	entry, ok := a.lookupMapView(c)
	if !ok {
		return
	}
	var payload struct {
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid JSON body"))
		return
	}
	entry.mu.Lock()
	changed, err := entry.view.SetLayerActive(payload.Name, payload.Active)
	state := entry.view.State()
	entry.mu.Unlock()
	if err != nil {
		if errors.Is(err, mapview.ErrUnknownLayer) {
			writeAPIError(c, badRequest("unknown_layer", "Unknown layer: "+payload.Name))
			return
		}
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "changed": changed, "state": state})
}

func (a *App) switchBaseLayerHandler(c *gin.Context) {
	entry, ok := a.lookupMapView(c)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid JSON body"))
		return
	}
	entry.mu.Lock()
	err := entry.view.SetBaseLayer(payload.Name)
	state := entry.view.State()
	entry.mu.Unlock()
	if err != nil {
		if errors.Is(err, mapview.ErrUnknownBaseLayer) {
			writeAPIError(c, badRequest("unknown_base_layer", "Unknown base layer: "+payload.Name))
			return
		}
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "state": state})
}

func (a *App) unmountMapViewHandler(c *gin.Context) {
	if !a.mapViews.remove(c.Param("id")) {
		writeAPIError(c, errMapViewNotFound)
		return
	}
	a.metrics.setMapViews(a.mapViews.len())
	c.JSON(http.StatusOK, gin.H{"success": true})
}
