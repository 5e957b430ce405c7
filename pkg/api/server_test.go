package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/config"
	"github.com/Mathih13/botharness/pkg/coordinator"
	"github.com/Mathih13/botharness/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	routesDir := t.TempDir()

	cfg := &config.HarnessConfig{
		AccountPassword:   "password",
		StartStagger:      config.Duration(time.Millisecond),
		TickInterval:      config.Duration(2 * time.Millisecond),
		PollInterval:      config.Duration(10 * time.Millisecond),
		StatusInterval:    config.Duration(50 * time.Millisecond),
		LoginPollInterval: config.Duration(2 * time.Millisecond),
	}
	runs := coordinator.NewRunCoordinator(routesDir, cfg, coordinator.Services{Bots: &bot.StubFactory{}})
	suites := coordinator.NewSuiteCoordinator(routesDir, runs)
	return NewServer(runs, suites), routesDir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const passingRouteJSON = `{
  "name": "t1",
  "harness": {"botCount": 1, "accountPrefix": "a_", "classes": ["Warrior"], "race": "Human", "level": 1, "setupTimeoutSeconds": 30, "testTimeoutSeconds": 30},
  "tasks": [{"type": "LogMessage", "message": "hi"}]
}`

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStartRunEndpoint(t *testing.T) {
	s, routesDir := newTestServer(t)
	writeFile(t, routesDir, "t1.json", passingRouteJSON)

	w := doJSON(t, s, http.MethodPost, "/api/runs", StartRunRequest{Route: "t1.json"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var view models.TestRunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.NotEmpty(t, view.ID)

	// Poll until the background run finishes.
	require.Eventually(t, func() bool {
		resp := doJSON(t, s, http.MethodGet, "/api/runs/"+view.ID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		var current models.TestRunView
		if err := json.Unmarshal(resp.Body.Bytes(), &current); err != nil {
			return false
		}
		return current.Status == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	report := doJSON(t, s, http.MethodGet, "/api/runs/"+view.ID+"/report", nil)
	assert.Equal(t, http.StatusOK, report.Code)
	assert.Contains(t, report.Body.String(), "t1")

	jsonReport := doJSON(t, s, http.MethodGet, "/api/runs/"+view.ID+"/report?format=json", nil)
	assert.Equal(t, http.StatusOK, jsonReport.Code)
	assert.Contains(t, jsonReport.Header().Get("Content-Type"), "application/json")
}

func TestStartRunRejectsBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/runs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/runs", StartRunRequest{Route: "missing.json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/runs/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelRun(t *testing.T) {
	s, routesDir := newTestServer(t)
	writeFile(t, routesDir, "slow.json", `{
	  "name": "slow",
	  "harness": {"botCount": 1, "accountPrefix": "a_", "classes": ["Warrior"], "race": "Human", "level": 1, "setupTimeoutSeconds": 30, "testTimeoutSeconds": 600},
	  "tasks": [{"type": "Wait", "seconds": 600}]
	}`)

	w := doJSON(t, s, http.MethodPost, "/api/runs", StartRunRequest{Route: "slow.json"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var view models.TestRunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))

	require.Eventually(t, func() bool {
		resp := doJSON(t, s, http.MethodGet, "/api/runs/"+view.ID, nil)
		var current models.TestRunView
		return json.Unmarshal(resp.Body.Bytes(), &current) == nil &&
			current.Status == models.RunStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel := doJSON(t, s, http.MethodPost, "/api/runs/"+view.ID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, cancel.Code)

	require.Eventually(t, func() bool {
		resp := doJSON(t, s, http.MethodGet, "/api/runs/"+view.ID, nil)
		var current models.TestRunView
		return json.Unmarshal(resp.Body.Bytes(), &current) == nil &&
			current.Status == models.RunStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	// A second cancel hits a finished run.
	again := doJSON(t, s, http.MethodPost, "/api/runs/"+view.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestSuiteEndpoints(t *testing.T) {
	s, routesDir := newTestServer(t)
	writeFile(t, routesDir, "a.json", passingRouteJSON)
	suitePath := writeFile(t, routesDir, "suite.json", `{
	  "name": "smoke",
	  "tests": [{"route": "a.json"}]
	}`)

	w := doJSON(t, s, http.MethodPost, "/api/suites", StartSuiteRequest{Suite: suitePath})
	require.Equal(t, http.StatusAccepted, w.Code)

	var view models.TestSuiteRunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.NotEmpty(t, view.ID)

	require.Eventually(t, func() bool {
		resp := doJSON(t, s, http.MethodGet, "/api/suites/"+view.ID, nil)
		var current models.TestSuiteRunView
		return json.Unmarshal(resp.Body.Bytes(), &current) == nil &&
			current.Status == models.SuiteStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	report := doJSON(t, s, http.MethodGet, "/api/suites/"+view.ID+"/report", nil)
	assert.Equal(t, http.StatusOK, report.Code)
	assert.Contains(t, report.Body.String(), "smoke")
}

func TestCancelSuite(t *testing.T) {
	s, routesDir := newTestServer(t)
	writeFile(t, routesDir, "slow.json", `{
	  "name": "slow",
	  "harness": {"botCount": 1, "accountPrefix": "a_", "classes": ["Warrior"], "race": "Human", "level": 1, "setupTimeoutSeconds": 30, "testTimeoutSeconds": 600},
	  "tasks": [{"type": "Wait", "seconds": 600}]
	}`)
	suitePath := writeFile(t, routesDir, "suite.json", `{
	  "name": "slow-suite",
	  "tests": [{"route": "slow.json"}]
	}`)

	w := doJSON(t, s, http.MethodPost, "/api/suites", StartSuiteRequest{Suite: suitePath})
	require.Equal(t, http.StatusAccepted, w.Code)
	var view models.TestSuiteRunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))

	require.Eventually(t, func() bool {
		resp := doJSON(t, s, http.MethodGet, "/api/suites/"+view.ID, nil)
		var current models.TestSuiteRunView
		return json.Unmarshal(resp.Body.Bytes(), &current) == nil &&
			current.Status == models.SuiteStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel := doJSON(t, s, http.MethodPost, "/api/suites/"+view.ID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, cancel.Code)

	require.Eventually(t, func() bool {
		resp := doJSON(t, s, http.MethodGet, "/api/suites/"+view.ID, nil)
		var current models.TestSuiteRunView
		return json.Unmarshal(resp.Body.Bytes(), &current) == nil &&
			current.Status == models.SuiteStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	// A second cancel hits a finished suite.
	again := doJSON(t, s, http.MethodPost, "/api/suites/"+view.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestSuiteValidationErrors(t *testing.T) {
	s, routesDir := newTestServer(t)
	suitePath := writeFile(t, routesDir, "cyclic.json", `{
	  "name": "cyclic",
	  "tests": [
	    {"route": "a.json", "dependsOn": ["b"]},
	    {"route": "b.json", "dependsOn": ["a"]}
	  ]
	}`)

	w := doJSON(t, s, http.MethodPost, "/api/suites", StartSuiteRequest{Suite: suitePath})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cycle")
}
