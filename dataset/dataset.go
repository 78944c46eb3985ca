// Package dataset loads labeled categorical datasets from disk and prepares
// them for the model registry.
package dataset

import (
	"math"
	"math/rand"

	"counsellor/ml"
)

// Dataset is one labeled table. Columns keeps the attribute order of the first
// record; Holdout is empty unless a test split was requested.
type Dataset struct {
	Key     string      `json:"key"`
	Source  string      `json:"source"`
	Columns []string    `json:"columns"`
	Records []ml.Record `json:"-"`
	Holdout []ml.Record `json:"-"`
}

// Split moves a seeded random testRatio share of the records into Holdout.
// A ratio outside (0, 1) leaves every record in the training set.
func (d Dataset) Split(testRatio float64, seed int64) Dataset {
	if testRatio <= 0 || testRatio >= 1 || len(d.Records) < 2 {
		return d
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(d.Records))

	testSize := int(math.Floor(float64(len(d.Records)) * testRatio))
	out := d
	out.Records = make([]ml.Record, 0, len(d.Records)-testSize)
	out.Holdout = make([]ml.Record, 0, testSize)
	for i, idx := range indices {
		if i < testSize {
			out.Holdout = append(out.Holdout, d.Records[idx])
		} else {
			out.Records = append(out.Records, d.Records[idx])
		}
	}
	return out
}
