package registry

import (
	"fmt"
	"sort"
	"time"

	"counsellor/dataset"
	"counsellor/ml"
)

// Model is an immutable snapshot of one trained dataset. It is replaced
// wholesale on rebuild and never modified after publication.
type Model struct {
	Key        string
	Version    uint64
	Records    []ml.Record
	Holdout    []ml.Record
	Attributes []string
	Target     string
	Tree       *ml.Node
	BuiltAt    time.Time

	allowed map[string][]string
}

// Allowed returns the distinct training values of attribute in first-seen order.
func (m *Model) Allowed(attribute string) []string {
	values := m.allowed[attribute]
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func (m *Model) isAllowed(attribute, value string) bool {
	for _, v := range m.allowed[attribute] {
		if v == value {
			return true
		}
	}
	return false
}

// Classifier binds the model's tree to its training records for fallback.
func (m *Model) Classifier() ml.Classifier {
	return &ml.Tree{Root: m.Tree, Training: m.Records, Target: m.Target}
}

func (r *Registry) newModel(ds dataset.Dataset, version uint64) (*Model, error) {
	if len(ds.Records) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", ds.Key, ErrDatasetEmpty)
	}
	columns := ds.Columns
	if len(columns) == 0 {
		columns = make([]string, 0, len(ds.Records[0]))
		for k := range ds.Records[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	target := r.ResolveTarget(columns)

	records := make([]ml.Record, 0, len(ds.Records))
	for _, record := range ds.Records {
		if record[target] == "" {
			continue
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s: no records carry %q: %w", ds.Key, target, ErrDatasetEmpty)
	}

	attributes := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == target || r.excluded[c] {
			continue
		}
		attributes = append(attributes, c)
	}

	m := &Model{
		Key:        ds.Key,
		Version:    version,
		Records:    records,
		Holdout:    ds.Holdout,
		Attributes: attributes,
		Target:     target,
		Tree:       ml.Build(records, attributes, target),
		BuiltAt:    time.Now(),
		allowed:    make(map[string][]string, len(attributes)),
	}
	for _, attr := range attributes {
		for _, subset := range ml.Partition(records, attr) {
			if subset.Value == "" {
				continue
			}
			m.allowed[attr] = append(m.allowed[attr], subset.Value)
		}
	}
	return m, nil
}
