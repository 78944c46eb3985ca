package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"counsellor/dataset"
	"counsellor/db"
	"counsellor/ml"
	"counsellor/registry"
)

const defaultDataset = "see"

type handlers struct {
	registry *registry.Registry
	store    *db.Store
	logger   *zap.Logger
}

func (h *handlers) register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/health", h.handleHealth},
		{"GET /api/datasets", h.handleDatasets},
		{"POST /api/recommendations", h.handleRecommendations},
		{"POST /api/validate/{dataset}", h.handleValidate},
		{"GET /api/model-info/{dataset}", h.handleModelInfo},
		{"GET /api/model-stats/{dataset}", h.handleModelStats},
		{"GET /api/evaluate/{dataset}", h.handleEvaluate},
		{"GET /api/tree/{dataset}", h.handleTree},
		{"GET /api/user/recommendations", h.handleListRecommendations},
		{"POST /api/user/recommendations", h.handleSaveRecommendation},
		{"GET /api/evaluations", h.handleEvaluations},
	}
	for _, route := range routes {
		mux.Handle(route.pattern, withRoute(route.pattern, route.handler))
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "OK",
		"initialized": h.registry.Initialized(),
		"datasets":    len(h.registry.Datasets()),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"datasets": h.registry.Datasets(),
	})
}

// inputRecord converts request JSON into a normalized record.
func inputRecord(raw map[string]interface{}) ml.Record {
	return dataset.Normalize(ml.RecordFromAny(raw))
}

func validationMessage(v registry.ValidationResult) string {
	if len(v.Missing) > 0 {
		return "Missing required fields: " + strings.Join(v.Missing, ", ")
	}
	if len(v.Invalid) > 0 {
		attrs := make([]string, len(v.Invalid))
		for i, inv := range v.Invalid {
			attrs[i] = inv.Attribute
		}
		return "Invalid values for: " + strings.Join(attrs, ", ")
	}
	return "Invalid student data"
}

func (h *handlers) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DatasetName == "" {
		req.DatasetName = defaultDataset
	}

	record := inputRecord(req.StudentData)
	validation := h.registry.Validate(req.DatasetName, record)
	if validation.Err != nil {
		h.writeRegistryError(w, req.DatasetName, validation.Err)
		return
	}
	if !validation.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   validationMessage(validation),
			"details": validation,
		})
		return
	}

	prediction, err := h.registry.PredictDetailed(req.DatasetName, record)
	if err != nil {
		h.writeRegistryError(w, req.DatasetName, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"recommendations": map[string]interface{}{
			"college":  prediction.Label,
			"model":    prediction.Dataset,
			"version":  prediction.Version,
			"fallback": prediction.Fallback,
		},
		"studentProfile": studentProfile(req.DatasetName, req.StudentData),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleValidate(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("dataset")
	var req ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	validation := h.registry.Validate(key, inputRecord(req.StudentData))
	if validation.Err != nil {
		h.writeRegistryError(w, key, validation.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"validation": validation,
	})
}

func (h *handlers) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("dataset")
	stats, err := h.registry.Stats(key)
	if err != nil {
		h.writeRegistryError(w, key, err)
		return
	}
	evaluation, err := h.registry.Evaluate(key)
	if err != nil && !errors.Is(err, registry.ErrNoHoldout) {
		h.writeRegistryError(w, key, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"modelInfo": map[string]interface{}{
			"stats":      stats,
			"evaluation": evaluation,
		},
	})
}

func (h *handlers) handleModelStats(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("dataset")
	stats, err := h.registry.Stats(key)
	if err != nil {
		h.writeRegistryError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func (h *handlers) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("dataset")
	evaluation, err := h.registry.Evaluate(key)
	if err != nil && !errors.Is(err, registry.ErrNoHoldout) {
		h.writeRegistryError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"evaluation": evaluation,
	})
}

func (h *handlers) handleTree(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("dataset")
	model, err := h.registry.Model(key)
	if err != nil {
		h.writeRegistryError(w, key, err)
		return
	}

	var rendered strings.Builder
	if err := model.Tree.Render(&rendered); err != nil {
		h.writeRegistryError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"dataset":  model.Key,
		"version":  model.Version,
		"target":   model.Target,
		"tree":     model.Tree,
		"rendered": rendered.String(),
	})
}

func (h *handlers) handleSaveRecommendation(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage is not configured")
		return
	}
	// a body owner takes precedence over the header
	req := SaveRecommendationRequest{Owner: r.Header.Get("X-User-ID")}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// store the raw input rather than the grouped view
	profile := req.StudentProfile
	if raw, ok := profile["raw"].(map[string]interface{}); ok {
		profile = raw
	}
	rec := &db.Recommendation{
		Owner:          req.Owner,
		DatasetName:    req.DatasetName,
		Prediction:     req.Prediction,
		StudentProfile: profile,
	}
	if err := h.store.SaveRecommendation(r.Context(), rec); err != nil {
		h.logger.Error("failed to save recommendation", zap.String("owner", req.Owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save recommendation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"recommendation": rec,
	})
}

func (h *handlers) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage is not configured")
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = r.Header.Get("X-User-ID")
	}
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	recs, err := h.store.ListRecommendations(r.Context(), owner, queryInt(r, "limit", 100))
	if err != nil {
		h.logger.Error("failed to list recommendations", zap.String("owner", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch recommendations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"recommendations": recs,
	})
}

func (h *handlers) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage is not configured")
		return
	}
	logs, err := h.store.LoadEvaluationLog(r.Context(), r.URL.Query().Get("dataset"), queryInt(r, "limit", 100))
	if err != nil {
		h.logger.Error("failed to load evaluation log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load evaluations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"evaluations": logs,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// writeRegistryError maps registry failures onto HTTP statuses.
func (h *handlers) writeRegistryError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, registry.ErrModelNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Model not found for dataset: %s", key))
	case errors.Is(err, registry.ErrUnclassifiable):
		writeError(w, http.StatusUnprocessableEntity, "Failed to generate recommendations")
	default:
		h.logger.Error("registry call failed", zap.String("dataset", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
