package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// readFields accepts a JSON object or a form post and flattens it into trimmed
// string values, so handlers validate both encodings the same way.
func readFields(c *gin.Context) (map[string]string, error) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	fields := make(map[string]string)

	if strings.Contains(contentType, "application/json") {
		var body map[string]any
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			return nil, badRequest("invalid_payload", "Invalid JSON body")
		}
		for key, value := range body {
			fields[key] = strings.TrimSpace(stringifyField(value))
		}
		return fields, nil
	}

	var err error
	if strings.HasPrefix(contentType, "multipart/") {
		err = c.Request.ParseMultipartForm(32 << 20)
	} else {
		err = c.Request.ParseForm()
	}
	if err != nil {
		return nil, badRequest("invalid_payload", "Invalid form body")
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			fields[key] = strings.TrimSpace(values[0])
		}
	}
	return fields, nil
}

func stringifyField(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func missingFields(fields map[string]string, required ...string) []string {
	missing := make([]string, 0)
	for _, key := range required {
		if fields[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func parseBoolField(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func optionalString(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
