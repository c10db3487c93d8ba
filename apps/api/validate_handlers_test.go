package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postPublicJSON(t *testing.T, router http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, csrfRequest(http.MethodPost, target, body))
	return rec
}

func TestValidateHealthMatch(t *testing.T) {
	_, router := newTestServer(t)
	rec := postPublicJSON(t, router, "/api/validate/health", `{"population":"10","healthy_count":"4","good_count":"3","bad_count":"2","deceased_count":"1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	form := body["form"].(map[string]any)
	assert.Equal(t, true, form["submit_enabled"])
	assert.Equal(t, float64(100), form["percentage"])
	assert.Equal(t, "match", form["state"])
	assert.Equal(t, "very_good", body["derived_health_status"])
}

func TestValidateHealthExceedsClampsPercentage(t *testing.T) {
	_, router := newTestServer(t)
	rec := postPublicJSON(t, router, "/api/validate/health", `{"population":10,"healthy_count":8,"good_count":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	result := body["result"].(map[string]any)
	assert.Equal(t, "exceeds", result["state"])
	assert.Equal(t, float64(3), result["difference"])
	assert.Equal(t, float64(100), result["percentage"])
	assert.Equal(t, "Health status total (13) exceeds population (10) by 3!", result["message"])
	assert.Equal(t, false, body["form"].(map[string]any)["submit_enabled"])
}

func TestValidateHealthEmptyFormHasNoDerivedStatus(t *testing.T) {
	_, router := newTestServer(t)
	rec := postPublicJSON(t, router, "/api/validate/health", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotContains(t, body, "derived_health_status")
	assert.Equal(t, "match", body["result"].(map[string]any)["state"])
}

func TestValidateFields(t *testing.T) {
	_, router := newTestServer(t)
	rec := postPublicJSON(t, router, "/api/validate/fields", `{"latitude":"7.5","longitude":"123.1","description":"Old growth Narra stand","unknown":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["valid"])
	errs := body["errors"].(map[string]any)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs, "latitude")
}
