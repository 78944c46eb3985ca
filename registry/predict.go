package registry

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"counsellor/ml"
)

// InvalidValue is an input value the model never saw during training.
type InvalidValue struct {
	Attribute string   `json:"attribute"`
	Value     string   `json:"value"`
	Allowed   []string `json:"validOptions"`
}

// ValidationResult reports whether a record can be fed to a model. Err is set
// only when the dataset itself is unknown.
type ValidationResult struct {
	Valid   bool           `json:"valid"`
	Missing []string       `json:"missingAttributes"`
	Invalid []InvalidValue `json:"invalidAttributes"`
	Err     error          `json:"-"`
}

// Validate checks that every feature of the model is present and non-empty in
// record, and that each value was observed in training.
func (r *Registry) Validate(key string, record ml.Record) ValidationResult {
	m, err := r.Model(key)
	if err != nil {
		return ValidationResult{Err: err, Missing: []string{}, Invalid: []InvalidValue{}}
	}

	result := ValidationResult{Missing: []string{}, Invalid: []InvalidValue{}}
	for _, attr := range m.Attributes {
		value, ok := record[attr]
		if !ok || value == "" {
			result.Missing = append(result.Missing, attr)
			continue
		}
		if !m.isAllowed(attr, value) {
			result.Invalid = append(result.Invalid, InvalidValue{
				Attribute: attr,
				Value:     value,
				Allowed:   m.Allowed(attr),
			})
		}
	}
	result.Valid = len(result.Missing) == 0 && len(result.Invalid) == 0
	if !result.Valid && r.observer != nil {
		r.observer.ValidationFailed(key)
	}
	return result
}

// Prediction is a label together with how it was obtained.
type Prediction struct {
	Label    string `json:"label"`
	Dataset  string `json:"dataset"`
	Version  uint64 `json:"version"`
	Fallback bool   `json:"fallback"`
	Cached   bool   `json:"cached"`
}

// Predict labels record with the model for key.
func (r *Registry) Predict(key string, record ml.Record) (string, error) {
	p, err := r.PredictDetailed(key, record)
	if err != nil {
		return "", err
	}
	return p.Label, nil
}

// PredictDetailed walks the prebuilt tree first. On a dead end the tree is
// grown again from the full training set and the record resolves to the
// global majority label.
func (r *Registry) PredictDetailed(key string, record ml.Record) (*Prediction, error) {
	m, err := r.Model(key)
	if err != nil {
		return nil, err
	}
	p := &Prediction{Dataset: m.Key, Version: m.Version}

	cacheKey := m.cacheKey(record)
	if label, ok := r.cache.Get(cacheKey); ok {
		p.Label = label
		p.Cached = true
		r.observePrediction(p)
		return p, nil
	}

	label, ok := ml.Classify(m.Tree, record)
	if !ok {
		r.logger.Debug("no branch for record, using fallback", zap.String("dataset", key))
		tree := ml.Build(m.Records, m.Attributes, m.Target)
		label, ok = ml.ClassifyWithFallback(tree, record, m.Records, m.Target)
		p.Fallback = true
	}
	if !ok || label == "" {
		return nil, fmt.Errorf("%s: %w", key, ErrUnclassifiable)
	}

	p.Label = label
	r.cache.Add(cacheKey, label)
	r.observePrediction(p)
	return p, nil
}

func (r *Registry) observePrediction(p *Prediction) {
	if r.observer != nil {
		r.observer.Predicted(p.Dataset, p.Cached, p.Fallback)
	}
}

func (m *Model) cacheKey(record ml.Record) string {
	var b strings.Builder
	b.WriteString(m.Key)
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(m.Version, 10))
	for _, v := range record.Project(m.Attributes) {
		b.WriteByte(0)
		b.WriteString(v)
	}
	return b.String()
}
