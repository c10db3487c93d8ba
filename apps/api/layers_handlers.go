package main

import (
	"net/http"
	"strconv"
	"strings"

	"negrostrees/libs/mapview"

	"github.com/gin-gonic/gin"
)

func parseLayerID(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, errLayerNotFound
	}
	return id, nil
}

// parseLayerFields validates a layer create or update body. is_active defaults
// to true.
func parseLayerFields(fields map[string]string) (MapLayer, error) {
	if fields["name"] == "" {
		return MapLayer{}, badRequest("missing_name", "Layer name is required")
	}
	if fields["layer_type"] == "" {
		return MapLayer{}, badRequest("missing_layer_type", "Layer type is required")
	}
	if fields["url"] == "" {
		return MapLayer{}, badRequest("missing_url", "Layer URL is required")
	}
	if !containsString(layerTypes, fields["layer_type"]) {
		return MapLayer{}, badRequest("invalid_layer_type", "Invalid layer type. Must be one of: "+strings.Join(layerTypes, ", "))
	}
	layer := MapLayer{
		Name:        fields["name"],
		Description: fields["description"],
		URL:         fields["url"],
		LayerType:   fields["layer_type"],
		IsActive:    parseBoolField(fields["is_active"], true),
		IsDefault:   parseBoolField(fields["is_default"], false),
		Attribution: fields["attribution"],
	}
	if raw := fields["z_index"]; raw != "" {
		zIndex, err := strconv.Atoi(raw)
		if err != nil {
			return MapLayer{}, badRequest("invalid_format", "Invalid data format: z_index must be an integer")
		}
		layer.ZIndex = zIndex
	}
	return layer, nil
}

func (a *App) listLayersHandler(c *gin.Context) {
	layers, err := a.layerList(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layers": layers})
}

func (a *App) getLayerHandler(c *gin.Context) {
	id, err := parseLayerID(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	layer, err := a.layerGet(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layer": layer})
}

func (a *App) createLayerHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	layer, err := parseLayerFields(fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	created, err := a.layerCreate(c.Request.Context(), layer)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Layer created successfully", "layer": created})
}

func (a *App) updateLayerHandler(c *gin.Context) {
	id, err := parseLayerID(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	layer, err := parseLayerFields(fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	updated, err := a.layerUpdate(c.Request.Context(), id, layer)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Layer updated successfully", "layer": updated})
}

func (a *App) deleteLayerHandler(c *gin.Context) {
	id, err := parseLayerID(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if err := a.layerDelete(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Layer deleted successfully"})
}

func (a *App) baseLayersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"default":  mapview.DefaultBaseLayer,
		"layers":   mapview.BaseLayers,
		"overlays": mapview.Overlays,
	})
}
