package registry

import (
	"fmt"
	"math"
	"time"
)

// Evaluation scores a model against its held-out records.
type Evaluation struct {
	Dataset     string                    `json:"datasetName"`
	Version     uint64                    `json:"version"`
	Total       int                       `json:"totalTestRecords"`
	Correct     int                       `json:"correctPredictions"`
	Accuracy    float64                   `json:"accuracy"`
	Confusion   map[string]map[string]int `json:"confusionMatrix"`
	EvaluatedAt time.Time                 `json:"evaluatedAt"`
}

// Evaluate re-classifies every held-out record. Accuracy is a percentage
// rounded to two decimals; Confusion maps actual to predicted to count.
func (r *Registry) Evaluate(key string) (*Evaluation, error) {
	m, err := r.Model(key)
	if err != nil {
		return nil, err
	}
	if len(m.Holdout) == 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrNoHoldout)
	}

	eval := &Evaluation{
		Dataset:     m.Key,
		Version:     m.Version,
		Total:       len(m.Holdout),
		Confusion:   make(map[string]map[string]int),
		EvaluatedAt: time.Now(),
	}
	classifier := m.Classifier()
	for _, record := range m.Holdout {
		actual := record[m.Target]
		predicted, _ := classifier.Classify(record)
		if predicted == actual {
			eval.Correct++
		}
		row, ok := eval.Confusion[actual]
		if !ok {
			row = make(map[string]int)
			eval.Confusion[actual] = row
		}
		row[predicted]++
	}
	eval.Accuracy = round2(float64(eval.Correct) / float64(eval.Total) * 100)
	return eval, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
