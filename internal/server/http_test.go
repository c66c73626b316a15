package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httpServer, *primer.Tracker) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	primer.NewMetrics(reg)
	tracker := primer.NewTracker()

	h := &httpServer{}
	h.setup(tracker, reg)
	return h, tracker
}

func get(h *httpServer, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.router.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	h, tracker := newTestServer(t)
	tracker.AddResult(primer.Outcome[primer.PrimerResult]{Project: primer.ProjectFromLocation("https://github.com/psf/black"), Err: errors.New("clone failed")})

	w := get(h, "/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var status statusResponse
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, h.runId, status.RunId)
	assert.Len(t, status.RunId, 16)
	assert.Equal(t, 1, status.Results)
	assert.Nil(t, status.Bisection)
	assert.False(t, status.Done)
}

func TestGetResults(t *testing.T) {
	h, tracker := newTestServer(t)
	tracker.AddResult(primer.Outcome[primer.PrimerResult]{Project: primer.ProjectFromLocation("https://github.com/psf/black"), Err: errors.New("clone failed")})

	w := get(h, "/results")
	assert.Equal(t, http.StatusOK, w.Code)

	var results []primer.ResultSummary
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "black", results[0].Project)
	assert.Equal(t, "clone failed", results[0].Error)
}

func TestGetResultBeforeDone(t *testing.T) {
	h, _ := newTestServer(t)

	w := get(h, "/result")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMetrics(t *testing.T) {
	h, _ := newTestServer(t)

	w := get(h, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "typeprimer_bisect_remaining_revisions"))
}

func TestNewServerInvalidType(t *testing.T) {
	_, err := NewServer(ServerType(42), 0, primer.NewTracker(), prometheus.NewRegistry())
	assert.NotNil(t, err)
}
