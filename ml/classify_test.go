package ml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tree := Build(scenario(), []string{"A"}, "T")

	label, ok := Classify(tree, Record{"A": "x"})
	require.True(t, ok)
	require.Equal(t, "yes", label)

	label, ok = Classify(tree, Record{"A": "y"})
	require.True(t, ok)
	require.Equal(t, "no", label)

	_, ok = Classify(tree, Record{"A": "z"})
	require.False(t, ok)

	_, ok = Classify(tree, Record{})
	require.False(t, ok)

	_, ok = Classify(nil, Record{"A": "x"})
	require.False(t, ok)
}

func TestClassifyWithFallbackUsesGlobalMajority(t *testing.T) {
	records := scenario()
	tree := Build(records, []string{"A"}, "T")

	label, ok := ClassifyWithFallback(tree, Record{"A": "z"}, records, "T")
	require.True(t, ok)
	require.Equal(t, "yes", label)

	_, ok = ClassifyWithFallback(tree, Record{"A": "z"}, nil, "T")
	require.False(t, ok)
}

func TestClassifyWithFallbackIgnoresLocalBranch(t *testing.T) {
	// the A=p branch leans "local" while the full set leans "global"
	records := []Record{
		{"A": "p", "B": "u", "T": "local"},
		{"A": "p", "B": "u", "T": "local"},
		{"A": "p", "B": "v", "T": "other"},
		{"A": "q", "B": "u", "T": "global"},
		{"A": "q", "B": "u", "T": "global"},
		{"A": "r", "B": "u", "T": "global"},
		{"A": "r", "B": "v", "T": "global"},
	}
	tree := Build(records, []string{"A", "B"}, "T")
	label, ok := ClassifyWithFallback(tree, Record{"A": "p", "B": "w"}, records, "T")
	require.True(t, ok)
	require.Equal(t, "global", label)
}

func TestTreeImplementsClassifier(t *testing.T) {
	records := scenario()
	var c Classifier = &Tree{Root: Build(records, []string{"A"}, "T"), Training: records, Target: "T"}
	label, ok := c.Classify(Record{"A": "unknown"})
	require.True(t, ok)
	require.Equal(t, "yes", label)
}
