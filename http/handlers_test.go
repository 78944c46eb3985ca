package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"counsellor/dataset"
	"counsellor/db"
	"counsellor/ml"
	"counsellor/monitoring"
	"counsellor/registry"
)

func seeDataset() dataset.Dataset {
	return dataset.Dataset{
		Key:     "see",
		Columns: []string{"SEE_GPA", "Hostel", "Tier", "College"},
		Records: []ml.Record{
			{"SEE_GPA": "3.6-4.0", "Hostel": "Yes", "Tier": "1", "College": "KU"},
			{"SEE_GPA": "3.6-4.0", "Hostel": "No", "Tier": "1", "College": "KU"},
			{"SEE_GPA": "2.8-3.6", "Hostel": "Yes", "Tier": "2", "College": "TU"},
			{"SEE_GPA": "2.8-3.6", "Hostel": "No", "Tier": "2", "College": "TU"},
		},
	}
}

type testEnv struct {
	handler  http.Handler
	registry *registry.Registry
	store    *db.Store
	metrics  *monitoring.Metrics
}

func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	metrics := monitoring.NewMetrics()
	reg, err := registry.New(registry.Options{Observer: metrics})
	require.NoError(t, err)

	withHoldout := seeDataset()
	withHoldout.Key = "plusTwo"
	withHoldout.Holdout = []ml.Record{
		{"SEE_GPA": "3.6-4.0", "Hostel": "Yes", "College": "KU"},
		{"SEE_GPA": "2.8-3.6", "Hostel": "Yes", "College": "KU"},
	}
	require.NoError(t, reg.Reinitialize([]dataset.Dataset{seeDataset(), withHoldout}))

	env := &testEnv{registry: reg, metrics: metrics}
	deps := Deps{Registry: reg, Metrics: metrics}
	if withStore {
		store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		env.store = store
		deps.Store = store
	}
	config := DefaultServerConfig()
	config.RateLimit = 0
	env.handler = NewHandler(config, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	rec, payload := env.do(t, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", payload["status"])
	require.Equal(t, true, payload["initialized"])
	require.EqualValues(t, 2, payload["datasets"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestDatasets(t *testing.T) {
	env := newTestEnv(t, false)
	_, payload := env.do(t, "GET", "/api/datasets", "")
	require.Equal(t, []interface{}{"plusTwo", "see"}, payload["datasets"])
}

func TestRecommendations(t *testing.T) {
	env := newTestEnv(t, false)

	rec, payload := env.do(t, "POST", "/api/recommendations",
		`{"studentData": {"SEE_GPA": " 2.8-3.6 ", "Hostel": "Yes", "Fee": "Low"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, payload["success"])

	recommendations := payload["recommendations"].(map[string]interface{})
	require.Equal(t, "TU", recommendations["college"])
	require.Equal(t, "see", recommendations["model"], "dataset defaults to see")

	profile := payload["studentProfile"].(map[string]interface{})
	require.Equal(t, "Yes", profile["raw"].(map[string]interface{})["Hostel"])
	require.Equal(t, "Low", profile["preferences"].(map[string]interface{})["fee"])
}

func TestRecommendationsValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"bad json", `{"studentData": `, http.StatusBadRequest, "invalid JSON"},
		{"empty body", ``, http.StatusBadRequest, "request body is required"},
		{"no student data", `{"datasetName": "see"}`, http.StatusBadRequest, "StudentData failed required"},
		{"unknown dataset", `{"studentData": {"A": "x"}, "datasetName": "masters"}`, http.StatusNotFound, "Model not found for dataset: masters"},
		{"missing field", `{"studentData": {"SEE_GPA": "3.6-4.0"}}`, http.StatusBadRequest, "Missing required fields: Hostel"},
		{"invalid value", `{"studentData": {"SEE_GPA": "1.0-2.0", "Hostel": "Yes"}}`, http.StatusBadRequest, "Invalid values for: SEE_GPA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, payload := env.do(t, "POST", "/api/recommendations", tt.body)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, false, payload["success"])
			require.Contains(t, payload["error"], tt.message)
		})
	}

	_, payload := env.do(t, "POST", "/api/recommendations", `{"studentData": {"SEE_GPA": "1.0-2.0", "Hostel": "Yes"}}`)
	details := payload["details"].(map[string]interface{})
	invalid := details["invalidAttributes"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, []interface{}{"3.6-4.0", "2.8-3.6"}, invalid["validOptions"])
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rec, payload := env.do(t, "POST", "/api/validate/see", `{"studentData": {"SEE_GPA": "3.6-4.0", "Hostel": "Maybe"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	validation := payload["validation"].(map[string]interface{})
	require.Equal(t, false, validation["valid"])

	rec, _ = env.do(t, "POST", "/api/validate/masters", `{"studentData": {}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModelEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	_, payload := env.do(t, "GET", "/api/model-info/see", "")
	info := payload["modelInfo"].(map[string]interface{})
	require.Nil(t, info["evaluation"], "no holdout, no evaluation")
	stats := info["stats"].(map[string]interface{})
	require.Equal(t, []interface{}{"SEE_GPA", "Hostel"}, stats["attributes"])

	_, payload = env.do(t, "GET", "/api/evaluate/plusTwo", "")
	evaluation := payload["evaluation"].(map[string]interface{})
	require.EqualValues(t, 50, evaluation["accuracy"])
	require.EqualValues(t, 2, evaluation["totalTestRecords"])

	_, payload = env.do(t, "GET", "/api/model-stats/see", "")
	require.Equal(t, "College", payload["stats"].(map[string]interface{})["targetAttribute"])

	_, payload = env.do(t, "GET", "/api/tree/see", "")
	require.Equal(t, "SEE_GPA", payload["tree"].(map[string]interface{})["attribute"])
	require.Contains(t, payload["rendered"], "SEE_GPA = 3.6-4.0")

	for _, path := range []string{"/api/model-info/x", "/api/model-stats/x", "/api/evaluate/x", "/api/tree/x"} {
		rec, _ := env.do(t, "GET", path, "")
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestUserRecommendations(t *testing.T) {
	env := newTestEnv(t, true)

	rec, payload := env.do(t, "POST", "/api/user/recommendations",
		`{"owner": "student-1", "datasetName": "see", "prediction": "KU", "studentProfile": {"raw": {"SEE_GPA": "3.6-4.0"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := payload["recommendation"].(map[string]interface{})
	require.NotEmpty(t, saved["id"])

	rec, _ = env.do(t, "POST", "/api/user/recommendations", `{"owner": "student-1", "datasetName": "see"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	_, payload = env.do(t, "GET", "/api/user/recommendations?owner=student-1", "")
	recs := payload["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	profile := recs[0].(map[string]interface{})["studentProfile"].(map[string]interface{})
	require.Equal(t, "3.6-4.0", profile["SEE_GPA"], "raw profile is stored unwrapped")

	rec, _ = env.do(t, "GET", "/api/user/recommendations", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageEndpointsWithoutStore(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/api/user/recommendations?owner=x", "/api/evaluations"} {
		rec, _ := env.do(t, "GET", path, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestEvaluations(t *testing.T) {
	env := newTestEnv(t, true)
	eval, err := env.registry.Evaluate("plusTwo")
	require.NoError(t, err)
	require.NoError(t, env.store.SaveEvaluation(context.Background(), eval))

	_, payload := env.do(t, "GET", "/api/evaluations?dataset=plusTwo", "")
	logs := payload["evaluations"].([]interface{})
	require.Len(t, logs, 1)
	require.EqualValues(t, 50, logs[0].(map[string]interface{})["accuracy"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, "GET", "/api/health", "")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `route="GET /api/health"`)
	require.Contains(t, rec.Body.String(), `counsellor_model_builds_total{dataset="see",result="ok"} 1`)
}

func TestUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	rec, payload := env.do(t, "GET", "/api/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Endpoint not found", payload["error"])
}

func TestReload(t *testing.T) {
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)

	calls := 0
	handler := NewHandler(ServerConfig{}, Deps{
		Registry: reg,
		Reload: func(r *http.Request) error {
			calls++
			if calls > 1 {
				return errors.New("dataset bachelor: dataset is empty")
			}
			return reg.Reinitialize([]dataset.Dataset{seeDataset()})
		},
	})
	env := &testEnv{handler: handler, registry: reg}

	rec, payload := env.do(t, "POST", "/api/models/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, payload["success"])
	require.Equal(t, []interface{}{"see"}, payload["datasets"])

	_, payload = env.do(t, "POST", "/api/models/reload", "")
	require.Equal(t, false, payload["success"])
	require.Contains(t, payload["error"], "dataset is empty")
}
