package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxSettingKeyLength = 64

func (a *App) settingsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := a.settingsAll(ctx)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	style, err := a.pinStyleDefault(ctx)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings, "pin_style": style})
}

func (a *App) saveThemeHandler(c *gin.Context) {
	a.saveChoiceSetting(c, "theme", themes, "Invalid theme")
}

func (a *App) saveMapStyleHandler(c *gin.Context) {
	a.saveChoiceSetting(c, "map_style", mapStyles, "Invalid map style")
}

func (a *App) saveChoiceSetting(c *gin.Context, key string, allowed []string, invalidMessage string) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	value := fields[key]
	if !containsString(allowed, value) {
		writeAPIError(c, badRequest("invalid_"+key, invalidMessage))
		return
	}
	if err := a.settingSave(c.Request.Context(), key, value); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, key: value})
}

func (a *App) savePinStyleHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	name := fields["pin_style"]
	if name == "" {
		writeAPIError(c, errPinStyleNotFound)
		return
	}
	style, err := a.pinStyleSetDefault(c.Request.Context(), name)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pin_style": style})
}

func (a *App) saveSettingHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	key := strings.TrimSpace(fields["key"])
	value, hasValue := fields["value"]
	if key == "" || !hasValue || len(key) > maxSettingKeyLength {
		writeAPIError(c, badRequest("invalid_setting", "Invalid key or value"))
		return
	}
	if err := a.settingSave(c.Request.Context(), key, value); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key, "value": value})
}
