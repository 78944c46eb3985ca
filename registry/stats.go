package registry

import (
	"sort"
	"time"

	"counsellor/ml"
)

// ImportanceMode selects how Stats scores features.
type ImportanceMode string

const (
	// ImportanceGain scores each feature by its information gain at the root.
	ImportanceGain ImportanceMode = "gain"
	// ImportanceStatic uses a fixed per-name weighting table.
	ImportanceStatic ImportanceMode = "static"
)

func (m ImportanceMode) Valid() bool {
	return m == ImportanceGain || m == ImportanceStatic
}

// staticImportance is a hand-tuned table for the SEE dataset; unknown names score defaultImportance.
var staticImportance = map[string]float64{
	"SEE_GPA":          0.95,
	"SEE_Science_GPA":  0.82,
	"SEE_Math_GPA":     0.78,
	"ECA":              0.65,
	"Scholarship":      0.58,
	"Science_Labs":     0.52,
	"Infrastructure":   0.48,
	"Fee":              0.42,
	"Hostel":           0.35,
	"Transportation":   0.28,
	"College_Location": 0.25,
}

const defaultImportance = 0.2

type Importance struct {
	Attribute  string  `json:"attribute"`
	Importance float64 `json:"importance"`
}

// Stats summarizes a model's training data and tree.
type Stats struct {
	Dataset           string         `json:"datasetName"`
	Version           uint64         `json:"version"`
	Target            string         `json:"targetAttribute"`
	TotalTrain        int            `json:"totalTrainRecords"`
	TotalTest         int            `json:"totalTestRecords"`
	Total             int            `json:"totalRecords"`
	LabelDistribution map[string]int `json:"labelDistribution"`
	TopLabel          string         `json:"topLabel"`
	Importance        []Importance   `json:"attributeImportance"`
	ImportanceMode    ImportanceMode `json:"importanceMode"`
	Attributes        []string       `json:"attributes"`
	TreeDepth         int            `json:"treeDepth"`
	TreeNodes         int            `json:"treeNodes"`
	BuiltAt           time.Time      `json:"builtAt"`
}

func (r *Registry) Stats(key string) (*Stats, error) {
	m, err := r.Model(key)
	if err != nil {
		return nil, err
	}
	top, _ := ml.MajorityClass(m.Records, m.Target)
	return &Stats{
		Dataset:           m.Key,
		Version:           m.Version,
		Target:            m.Target,
		TotalTrain:        len(m.Records),
		TotalTest:         len(m.Holdout),
		Total:             len(m.Records) + len(m.Holdout),
		LabelDistribution: ml.Frequencies(m.Records, m.Target),
		TopLabel:          top,
		Importance:        r.rankImportance(m),
		ImportanceMode:    r.importance,
		Attributes:        append([]string(nil), m.Attributes...),
		TreeDepth:         m.Tree.Depth(),
		TreeNodes:         m.Tree.Size(),
		BuiltAt:           m.BuiltAt,
	}, nil
}

// rankImportance sorts features by score, highest first; ties keep feature order.
func (r *Registry) rankImportance(m *Model) []Importance {
	ranking := make([]Importance, 0, len(m.Attributes))
	for _, attr := range m.Attributes {
		var score float64
		switch r.importance {
		case ImportanceStatic:
			score = defaultImportance
			if v, ok := staticImportance[attr]; ok {
				score = v
			}
		default:
			score = ml.InformationGain(m.Records, attr, m.Target)
		}
		ranking = append(ranking, Importance{Attribute: attr, Importance: score})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Importance > ranking[j].Importance
	})
	return ranking
}
