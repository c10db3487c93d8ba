package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStaging struct {
	rows      []map[string]any
	listErr   error
	deleteErr error
	deleted   []string
}

func (f *fakeStaging) List(ctx context.Context) ([]map[string]any, error) {
	return f.rows, f.listErr
}

func (f *fakeStaging) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func TestSupabaseClientListSendsKeyHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/tree_sightings", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"41","common_name":"Narra"}]`))
	}))
	defer server.Close()

	client := NewSupabaseClient(server.URL+"/", "anon-key", "tree_sightings", server.Client())
	rows, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Narra", rows[0]["common_name"])
}

func TestSupabaseClientDeleteUsesEqFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.41", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewSupabaseClient(server.URL, "anon-key", "tree_sightings", server.Client())
	require.NoError(t, client.Delete(context.Background(), "41"))
}

func TestSupabaseClientBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewSupabaseClient(server.URL, "anon-key", "tree_sightings", server.Client())
	for i := 0; i < stagingBreakerFailures; i++ {
		_, err := client.List(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	}
	_, err := client.List(context.Background())
	assert.ErrorIs(t, err, errStagingUnavailable)
	assert.Equal(t, int32(stagingBreakerFailures), calls.Load())
}

func TestListStagingHandler(t *testing.T) {
	app, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodGet, "/api/supabase-data", ""))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "staging_not_configured", decodeBody(t, rec)["code"])

	app.staging = &fakeStaging{rows: []map[string]any{{"id": "1"}}}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodGet, "/api/supabase-data", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)
}

func TestImportStagingHandlerAddsDefaultNotes(t *testing.T) {
	app, router := newTestServer(t)
	var captured TreeInput
	app.treeCreate = func(ctx context.Context, input TreeInput) (*TreeRecord, error) {
		captured = input
		return &TreeRecord{ID: "new-tree"}, nil
	}

	body := `{"supabase_id":"41","common_name":"Narra","scientific_name":"Pterocarpus indicus","family":"Fabaceae","genus":"Pterocarpus",
		"latitude":9.3,"longitude":123.2,"population":4,"year":2024,"health_status":"good",
		"healthy_count":4,"good_count":0,"bad_count":0,"deceased_count":0}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/api/supabase-data", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	response := decodeBody(t, rec)
	assert.Equal(t, "Successfully added Narra to database", response["message"])
	assert.Equal(t, "new-tree", response["tree_id"])
	assert.Equal(t, "Imported from Supabase - ID: 41", captured.Notes)
	assert.Equal(t, "excellent", captured.HealthStatus)
}

func TestImportStagingHandlerRequiresCounts(t *testing.T) {
	app, router := newTestServer(t)
	body := `{"common_name":"Narra","scientific_name":"Pterocarpus indicus","family":"Fabaceae","genus":"Pterocarpus",
		"latitude":9.3,"longitude":123.2,"population":4,"year":2024,"health_status":"good"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/api/supabase-data", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "healthy_count")
}

func TestDeleteStagingHandler(t *testing.T) {
	app, router := newTestServer(t)
	fake := &fakeStaging{}
	app.staging = fake

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodDelete, "/api/supabase-data", `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Supabase ID is required", decodeBody(t, rec)["error"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodDelete, "/api/supabase-data", `{"supabase_id":"41"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"41"}, fake.deleted)

	fake.deleteErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodDelete, "/api/supabase-data", `{"supabase_id":"42"}`))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to delete from Supabase: connection refused", decodeBody(t, rec)["error"])
}
