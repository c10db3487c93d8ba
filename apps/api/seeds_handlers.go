package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *App) createSeedHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	input, err := parseSeedInput(fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	seed, err := a.seedCreate(c.Request.Context(), input)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	a.metrics.recordSeedsWritten(1)
	a.geocodeLocationAsync(seed.LocationID, seed.Latitude, seed.Longitude)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Seed planting record added successfully",
		"seed":    seed,
	})
}

func (a *App) editSeedHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	update, err := parseSeedUpdate(fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	seed, err := a.seedUpdate(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Seed record updated successfully",
		"seed":    seed,
	})
}

func (a *App) deleteSeedHandler(c *gin.Context) {
	deleted, err := a.seedDelete(c.Request.Context(), []string{c.Param("id")})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if deleted == 0 {
		writeAPIError(c, errSeedNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Seed record deleted successfully",
		"deleted_count": deleted,
	})
}

func (a *App) deleteSeedsBulkHandler(c *gin.Context) {
	var payload struct {
		SeedIDs []string `json:"seed_ids"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, badRequest("invalid_payload", "Invalid JSON body"))
		return
	}
	ids := compactIDs(payload.SeedIDs)
	if len(ids) == 0 {
		writeAPIError(c, badRequest("no_ids", "No seed IDs provided"))
		return
	}
	deleted, err := a.seedDelete(c.Request.Context(), ids)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Successfully deleted %d seed records", deleted),
		"deleted_count": deleted,
	})
}

func (a *App) deleteAllSeedsHandler(c *gin.Context) {
	deleted, err := a.seedDeleteAll(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	session, _ := getUserSession(c)
	a.log.Warn("all seed records deleted", "email", session.Email, "deleted_count", deleted)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Successfully deleted %d seed records", deleted),
		"deleted_count": deleted,
	})
}
