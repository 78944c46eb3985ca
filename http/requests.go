package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// RecommendationRequest 推荐请求
type RecommendationRequest struct {
	StudentData map[string]interface{} `json:"studentData" validate:"required"`
	DatasetName string                 `json:"datasetName" validate:"omitempty,max=64"`
}

// ValidateRequest 校验请求
type ValidateRequest struct {
	StudentData map[string]interface{} `json:"studentData" validate:"required"`
}

// SaveRecommendationRequest 保存推荐请求
type SaveRecommendationRequest struct {
	Owner          string                 `json:"owner" validate:"required,max=128"`
	DatasetName    string                 `json:"datasetName" validate:"required,max=64"`
	Prediction     string                 `json:"prediction" validate:"required"`
	StudentProfile map[string]interface{} `json:"studentProfile"`
}

// decodeJSON reads a JSON body into dst and validates its struct tags.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := getValidator().Struct(dst); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			messages := make([]string, 0, len(errs))
			for _, e := range errs {
				messages = append(messages, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
			}
			return errors.New(strings.Join(messages, "; "))
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
