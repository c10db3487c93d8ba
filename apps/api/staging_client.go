package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

const (
	stagingBreakerFailures = 3
	stagingBreakerOpen     = 30 * time.Second
	stagingBreakerInterval = time.Minute
)

var (
	errStagingNotConfigured = &apiError{Status: http.StatusServiceUnavailable, Code: "staging_not_configured", Message: "Staging source is not configured"}
	errStagingUnavailable   = &apiError{Status: http.StatusServiceUnavailable, Code: "staging_unavailable", Message: "Staging source is temporarily unavailable"}
)

// StagingClient reads and removes field sightings collected by the mobile
// app before they are imported as tree records.
type StagingClient interface {
	List(ctx context.Context) ([]map[string]any, error)
	Delete(ctx context.Context, id string) error
}

// SupabaseClient talks to the PostgREST endpoint of a Supabase project. Calls
// go through a circuit breaker so a dead project fails fast.
type SupabaseClient struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewSupabaseClient(baseURL, apiKey, table string, client *http.Client) *SupabaseClient {
	return &SupabaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   table,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "staging-" + table,
			Interval: stagingBreakerInterval,
			Timeout:  stagingBreakerOpen,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= stagingBreakerFailures
			},
		}),
	}
}

func (s *SupabaseClient) tableURL() string {
	return fmt.Sprintf("%s/rest/v1/%s", s.baseURL, url.PathEscape(s.table))
}

func (s *SupabaseClient) do(ctx context.Context, method, rawURL string) ([]byte, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("staging %s %s: status %d: %s", method, s.table, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errStagingUnavailable
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (s *SupabaseClient) List(ctx context.Context) ([]map[string]any, error) {
	body, err := s.do(ctx, http.MethodGet, s.tableURL()+"?select=*")
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0)
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode staging rows: %w", err)
	}
	return rows, nil
}

func (s *SupabaseClient) Delete(ctx context.Context, id string) error {
	_, err := s.do(ctx, http.MethodDelete, s.tableURL()+"?id=eq."+url.QueryEscape(id))
	return err
}

var stagingRequiredFields = append(
	append(append([]string{}, treeRequiredFields...), "health_status"),
	healthCountFields...,
)

func (a *App) listStagingHandler(c *gin.Context) {
	if a.staging == nil {
		writeAPIError(c, errStagingNotConfigured)
		return
	}
	rows, err := a.staging.List(c.Request.Context())
	a.metrics.recordStagingCall("list", err)
	if err != nil {
		a.log.Error("failed to list staging rows", "err", err)
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rows})
}

func (a *App) importStagingHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if missing := missingFields(fields, stagingRequiredFields...); len(missing) > 0 {
		writeAPIError(c, badRequest("missing_fields", "Missing required fields: "+strings.Join(missing, ", ")))
		return
	}
	input, err := parseTreeInput(fields, true)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if input.Notes == "" {
		stagingID := fields["supabase_id"]
		if stagingID == "" {
			stagingID = "Unknown"
		}
		input.Notes = "Imported from Supabase - ID: " + stagingID
	}

	tree, err := a.treeCreate(c.Request.Context(), input)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	a.metrics.recordTreesWritten("staging", 1)
	a.geocodeLocationAsync(tree.LocationID, tree.Latitude, tree.Longitude)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Successfully added %s to database", input.CommonName),
		"tree_id": tree.ID,
	})
}

func (a *App) deleteStagingHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	id := fields["supabase_id"]
	if id == "" {
		writeAPIError(c, badRequest("missing_supabase_id", "Supabase ID is required"))
		return
	}
	if a.staging == nil {
		writeAPIError(c, errStagingNotConfigured)
		return
	}
	err = a.staging.Delete(c.Request.Context(), id)
	a.metrics.recordStagingCall("delete", err)
	if err != nil {
		a.log.Error("failed to delete staging row", "supabase_id", id, "err", err)
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			writeAPIError(c, err)
			return
		}
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "staging_delete_failed", Message: "Failed to delete from Supabase: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Successfully deleted from Supabase"})
}
