package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"negrostrees/libs/mapview"

	"github.com/gin-gonic/gin"
)

func (a *App) treeDataHandler(c *gin.Context) {
	a.writeTreeCollection(c, map[string]any{})
}

func (a *App) filterTreesHandler(c *gin.Context) {
	raw := c.Param("species_id")
	filters := map[string]any{}
	if raw != "all" {
		speciesID, err := strconv.Atoi(raw)
		if err != nil || speciesID <= 0 {
			writeAPIError(c, badRequest("invalid_species", "Invalid species id"))
			return
		}
		filters["species_id"] = speciesID
	}
	a.writeTreeCollection(c, filters)
}

func (a *App) writeTreeCollection(c *gin.Context, filters map[string]any) {
	ctx := c.Request.Context()
	trees, err := a.treeList(ctx, filters)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	fc := treeFeatureCollection(trees)
	if a.pinStyleDefault != nil {
		style, err := a.pinStyleDefault(ctx)
		if err != nil {
			a.log.Error("failed to load default pin style", "err", err)
		}
		fc.PinStyle = pinStyleProperties(style)
	}
	c.JSON(http.StatusOK, fc)
}

func (a *App) seedDataHandler(c *gin.Context) {
	seeds, err := a.seedList(c.Request.Context(), map[string]any{})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, seedFeatureCollection(seeds))
}

func parseTreeFilters(c *gin.Context) map[string]any {
	filters := map[string]any{}
	if value, err := strconv.Atoi(c.Query("species_id")); err == nil && value > 0 {
		filters["species_id"] = value
	}
	if value, err := strconv.Atoi(c.Query("year")); err == nil && value > 0 {
		filters["year"] = value
	}
	if value, err := strconv.Atoi(c.Query("location_id")); err == nil && value > 0 {
		filters["location_id"] = value
	}
	if value := strings.TrimSpace(c.Query("health_status")); value != "" {
		filters["health_status"] = value
	}
	if value := strings.TrimSpace(c.Query("family")); value != "" {
		filters["family"] = value
	}
	if value := strings.TrimSpace(c.Query("search")); value != "" {
		filters["search"] = value
	}
	return filters
}

func (a *App) listTreesHandler(c *gin.Context) {
	page := parsePage(c.Query("page"))
	pageSize := treesDefaultPageSize
	if value, err := strconv.Atoi(c.Query("page_size")); err == nil && value > 0 && value <= 200 {
		pageSize = value
	}

	result, err := a.treeListPaginated(c.Request.Context(), parseTreeFilters(c), page, pageSize)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"trees":      result.Trees,
		"pagination": buildPaginationView(result.TotalCount, page, pageSize),
	})
}

func (a *App) createTreeHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	input, err := parseTreeInput(fields, true)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	tree, err := a.treeCreate(c.Request.Context(), input)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	a.metrics.recordTreesWritten("manual", 1)
	a.geocodeLocationAsync(tree.LocationID, tree.Latitude, tree.Longitude)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Tree record added successfully",
		"tree":    tree,
	})
}

func (a *App) editTreeHandler(c *gin.Context) {
	id := c.Param("id")
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	update, err := parseTreeUpdate(fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if update.Counts == nil {
		// The stored distribution must still add up to the new population.
		current, err := a.treeGet(c.Request.Context(), id)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if current.Counts.Total() > 0 {
			if err := reconcileCounts(update.Population, current.Counts); err != nil {
				writeAPIError(c, err)
				return
			}
		}
	}
	tree, err := a.treeUpdate(c.Request.Context(), id, update)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Tree record updated successfully",
		"tree":    tree,
	})
}

func (a *App) deleteTreeHandler(c *gin.Context) {
	deleted, err := a.treeDelete(c.Request.Context(), []string{c.Param("id")})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if deleted == 0 {
		writeAPIError(c, errTreeNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Tree record deleted successfully",
		"deleted_count": deleted,
	})
}

func (a *App) deleteTreesBulkHandler(c *gin.Context) {
	var payload struct {
		TreeIDs []string `json:"tree_ids"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid JSON body"))
		return
	}
	ids := compactIDs(payload.TreeIDs)
	if len(ids) == 0 {
		writeAPIError(c, badRequest("no_ids", "No tree IDs provided"))
		return
	}
	deleted, err := a.treeDelete(c.Request.Context(), ids)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Successfully deleted %d tree records", deleted),
		"deleted_count": deleted,
	})
}

func (a *App) deleteAllTreesHandler(c *gin.Context) {
	deleted, err := a.treeDeleteAll(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	session, _ := getUserSession(c)
	a.log.Warn("all tree records deleted", "email", session.Email, "deleted_count", deleted)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Successfully deleted %d tree records", deleted),
		"deleted_count": deleted,
	})
}

func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func setNoCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func (a *App) speciesListHandler(c *gin.Context) {
	species, err := a.speciesList(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	setNoCacheHeaders(c)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"species":   species,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) locationsListHandler(c *gin.Context) {
	locations, err := a.locationList(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	setNoCacheHeaders(c)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"locations": locations,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// treeCollectionForView loads the features a map view renders for dataset.
func (a *App) treeCollectionForView(c *gin.Context, dataset mapview.Dataset, speciesID int) (mapview.FeatureCollection, error) {
	filters := map[string]any{}
	if speciesID > 0 {
		filters["species_id"] = speciesID
	}
	if dataset == mapview.DatasetSeeds {
		seeds, err := a.seedList(c.Request.Context(), filters)
		if err != nil {
			return mapview.FeatureCollection{}, err
		}
		return seedFeatureCollection(seeds), nil
	}
	trees, err := a.treeList(c.Request.Context(), filters)
	if err != nil {
		return mapview.FeatureCollection{}, err
	}
	return treeFeatureCollection(trees), nil
}
