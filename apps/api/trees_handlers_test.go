package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"negrostrees/libs/healthdist"

	"github.com/gin-gonic/gin"
)

const testCSRFToken = "test-csrf-token"

func newTestServer(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app := &App{
		cfg: &Config{
			Env:                 "test",
			AppSigningSecret:    "0123456789abcdef",
			PublicBaseURL:       "http://localhost:8080",
			MapViewTTL:          30 * time.Minute,
			SubmissionRateLimit: 5,
		},
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		mapViews:    newMapViewStore(),
		rateBuckets: make(map[string]rateBucket),
	}
	app.treeList = func(ctx context.Context, filters map[string]any) ([]TreeRecord, error) {
		return []TreeRecord{}, nil
	}
	app.seedList = func(ctx context.Context, filters map[string]any) ([]SeedRecord, error) {
		return []SeedRecord{}, nil
	}
	return app, app.newRouter()
}

// sessionRequest builds a request carrying a signed session cookie and a
// matching CSRF cookie and header.
func sessionRequest(t *testing.T, app *App, method, target, body string, session UserSession) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		if strings.HasPrefix(strings.TrimSpace(body), "{") {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	token, err := app.createUserSessionToken(session)
	if err != nil {
		t.Fatalf("create session token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: userCookieName, Value: token, Path: "/"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFToken, Path: "/"})
	req.Header.Set(csrfHeaderName, testCSRFToken)
	return req
}

func editorRequest(t *testing.T, app *App, method, target, body string) *http.Request {
	return sessionRequest(t, app, method, target, body, UserSession{Email: "editor@example.com", Role: roleAppUser})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestTreeDataReturnsFeatureCollection(t *testing.T) {
	app, router := newTestServer(t)
	municipality := "Valencia"
	app.treeList = func(ctx context.Context, filters map[string]any) ([]TreeRecord, error) {
		if len(filters) != 0 {
			t.Fatalf("expected no filters, got %#v", filters)
		}
		return []TreeRecord{{
			ID:             "11111111-1111-1111-1111-111111111111",
			CommonName:     "Negros Forest Tree",
			ScientificName: "Shorea negrosensis",
			Latitude:       9.3,
			Longitude:      123.2,
			Municipality:   &municipality,
			Population:     10,
			Year:           2024,
			HealthStatus:   "good",
			Counts:         healthdist.Counts{Healthy: 4, Good: 3, Bad: 2, Deceased: 1},
		}}, nil
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tree-data", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["type"] != "FeatureCollection" {
		t.Fatalf("expected FeatureCollection, got %#v", body["type"])
	}
	features, ok := body["features"].([]any)
	if !ok || len(features) != 1 {
		t.Fatalf("expected one feature, got %#v", body["features"])
	}
	geometry := features[0].(map[string]any)["geometry"].(map[string]any)
	coords := geometry["coordinates"].([]any)
	if coords[0].(float64) != 123.2 || coords[1].(float64) != 9.3 {
		t.Fatalf("expected [lng, lat] ordering, got %#v", coords)
	}
}

func TestFilterTreesParsesSpeciesID(t *testing.T) {
	app, router := newTestServer(t)
	var captured map[string]any
	app.treeList = func(ctx context.Context, filters map[string]any) ([]TreeRecord, error) {
		captured = filters
		return []TreeRecord{}, nil
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filter-trees/7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured["species_id"] != 7 {
		t.Fatalf("expected species_id 7, got %#v", captured)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filter-trees/all", nil))
	if rec.Code != http.StatusOK || len(captured) != 0 {
		t.Fatalf("expected unfiltered list for all, got %d %#v", rec.Code, captured)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filter-trees/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid species id, got %d", rec.Code)
	}
}

func TestCreateTreeRequiresLogin(t *testing.T) {
	_, router := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/trees", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFToken})
	req.Header.Set(csrfHeaderName, testCSRFToken)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateTreeRejectsNonEditorRole(t *testing.T) {
	app, router := newTestServer(t)
	req := sessionRequest(t, app, http.MethodPost, "/api/trees", `{}`, UserSession{Email: "viewer@example.com", Role: rolePublicUser})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateTreeRejectsHealthMismatch(t *testing.T) {
	app, router := newTestServer(t)
	app.treeCreate = func(ctx context.Context, input TreeInput) (*TreeRecord, error) {
		t.Fatal("treeCreate must not be called for a mismatched distribution")
		return nil, nil
	}

	body := `{"common_name":"Negros Forest Tree","scientific_name":"Shorea negrosensis","family":"Dipterocarpaceae","genus":"Shorea",
		"latitude":"9.3","longitude":"123.2","population":10,"year":2024,
		"healthy_count":5,"good_count":3,"bad_count":1,"deceased_count":0}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/api/trees", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	response := decodeBody(t, rec)
	if response["code"] != "health_mismatch" {
		t.Fatalf("expected health_mismatch, got %#v", response["code"])
	}
	if !strings.Contains(response["error"].(string), "(9)") || !strings.Contains(response["error"].(string), "(10)") {
		t.Fatalf("expected totals in message, got %q", response["error"])
	}
}

func TestCreateTreeDerivesStatusFromCounts(t *testing.T) {
	app, router := newTestServer(t)
	var captured TreeInput
	app.treeCreate = func(ctx context.Context, input TreeInput) (*TreeRecord, error) {
		captured = input
		return &TreeRecord{ID: "abc", CommonName: input.CommonName, Population: input.Population, Counts: input.Counts}, nil
	}

	form := "common_name=Negros+Forest+Tree&scientific_name=Shorea+negrosensis&family=Dipterocarpaceae&genus=Shorea" +
		"&latitude=9.3&longitude=123.2&population=10&year=2024&health_status=excellent" +
		"&healthy_count=1&good_count=1&bad_count=6&deceased_count=2"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/api/trees", form))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.HealthStatus != "poor" {
		t.Fatalf("expected derived status poor, got %q", captured.HealthStatus)
	}
	if captured.Counts.Total() != 10 {
		t.Fatalf("expected counts to be kept, got %#v", captured.Counts)
	}
}

func TestCreateTreeRejectsMissingCSRF(t *testing.T) {
	app, router := newTestServer(t)
	req := editorRequest(t, app, http.MethodPost, "/api/trees", `{}`)
	req.Header.Set(csrfHeaderName, "other")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if decodeBody(t, rec)["code"] != "csrf_failed" {
		t.Fatalf("expected csrf_failed, got %s", rec.Body.String())
	}
}

func TestEditTreeRechecksStoredCountsWhenPopulationChanges(t *testing.T) {
	app, router := newTestServer(t)
	app.treeGet = func(ctx context.Context, id string) (*TreeRecord, error) {
		return &TreeRecord{ID: id, Population: 10, Counts: healthdist.Counts{Healthy: 4, Good: 3, Bad: 2, Deceased: 1}}, nil
	}
	var updates int
	app.treeUpdate = func(ctx context.Context, id string, update TreeUpdate) (*TreeRecord, error) {
		updates++
		return &TreeRecord{ID: id, Population: update.Population}, nil
	}

	form := "species=2&population=20&year=2024&health_status=good&latitude=9.3&longitude=123.2"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/edit-tree/tree-1", form))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["code"]; got != "health_mismatch" {
		t.Fatalf("expected health_mismatch, got %#v", got)
	}
	if updates != 0 {
		t.Fatalf("treeUpdate must not be called for a stale distribution")
	}

	form = "species=2&population=10&year=2024&health_status=good&latitude=9.3&longitude=123.2"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/edit-tree/tree-1", form))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	form = "species=2&population=20&year=2024&health_status=good&latitude=9.3&longitude=123.2" +
		"&healthy_count=10&good_count=5&bad_count=5&deceased_count=0"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/edit-tree/tree-1", form))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with new counts, got %d: %s", rec.Code, rec.Body.String())
	}
	if updates != 2 {
		t.Fatalf("expected 2 updates, got %d", updates)
	}
}

func TestEditTreeSkipsCheckWithoutStoredCounts(t *testing.T) {
	app, router := newTestServer(t)
	app.treeGet = func(ctx context.Context, id string) (*TreeRecord, error) {
		return &TreeRecord{ID: id, Population: 10}, nil
	}
	app.treeUpdate = func(ctx context.Context, id string, update TreeUpdate) (*TreeRecord, error) {
		return &TreeRecord{ID: id, Population: update.Population}, nil
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/edit-tree/tree-1", "species=2&population=25&year=2024&health_status=good&latitude=9.3&longitude=123.2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteTreesBulkRequiresIDs(t *testing.T) {
	app, router := newTestServer(t)
	app.treeDelete = func(ctx context.Context, ids []string) (int, error) {
		t.Fatal("treeDelete must not be called without ids")
		return 0, nil
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/delete-trees-bulk", `{"tree_ids":["", "  "]}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "No tree IDs provided" {
		t.Fatalf("unexpected error message %#v", got)
	}
}

func TestDeleteTreesBulkDeduplicatesIDs(t *testing.T) {
	app, router := newTestServer(t)
	var captured []string
	app.treeDelete = func(ctx context.Context, ids []string) (int, error) {
		captured = ids
		return len(ids), nil
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/delete-trees-bulk", `{"tree_ids":["a","b","a"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(captured) != 2 {
		t.Fatalf("expected 2 unique ids, got %#v", captured)
	}
	body := decodeBody(t, rec)
	if body["deleted_count"].(float64) != 2 {
		t.Fatalf("expected deleted_count 2, got %#v", body["deleted_count"])
	}
}

func TestDeleteTreeNotFound(t *testing.T) {
	app, router := newTestServer(t)
	app.treeDelete = func(ctx context.Context, ids []string) (int, error) {
		return 0, nil
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, editorRequest(t, app, http.MethodPost, "/delete-tree/missing", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTreesPassesFiltersAndPagination(t *testing.T) {
	app, router := newTestServer(t)
	var gotFilters map[string]any
	var gotPage, gotSize int
	app.treeListPaginated = func(ctx context.Context, filters map[string]any, page, pageSize int) (*PaginatedTrees, error) {
		gotFilters, gotPage, gotSize = filters, page, pageSize
		return &PaginatedTrees{Trees: []TreeRecord{}, TotalCount: 120}, nil
	}

	req := sessionRequest(t, app, http.MethodGet, "/api/trees?page=2&page_size=50&year=2023&health_status=good&search=shorea", "", UserSession{Email: "viewer@example.com", Role: rolePublicUser})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotPage != 2 || gotSize != 50 {
		t.Fatalf("expected page 2 size 50, got %d %d", gotPage, gotSize)
	}
	if gotFilters["year"] != 2023 || gotFilters["health_status"] != "good" || gotFilters["search"] != "shorea" {
		t.Fatalf("unexpected filters %#v", gotFilters)
	}
	pagination := decodeBody(t, rec)["pagination"].(map[string]any)
	if pagination["total_pages"].(float64) != 3 || pagination["next_page"].(float64) != 3 {
		t.Fatalf("unexpected pagination %#v", pagination)
	}
}

func TestCompactIDs(t *testing.T) {
	got := compactIDs([]string{" a ", "", "b", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected ids %#v", got)
	}
}
