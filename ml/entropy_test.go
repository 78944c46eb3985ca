package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func scenario() []Record {
	return []Record{
		{"A": "x", "T": "yes"},
		{"A": "x", "T": "yes"},
		{"A": "y", "T": "no"},
	}
}

func TestFrequencies(t *testing.T) {
	counts := Frequencies(scenario(), "T")
	require.Equal(t, map[string]int{"yes": 2, "no": 1}, counts)
	require.Empty(t, Frequencies(nil, "T"))
}

func TestEntropy(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    float64
	}{
		{name: "empty", records: nil, want: 0},
		{name: "single class", records: []Record{{"T": "a"}, {"T": "a"}, {"T": "a"}}, want: 0},
		{name: "two equal classes", records: []Record{{"T": "a"}, {"T": "b"}}, want: 1},
		{name: "four equal classes", records: []Record{{"T": "a"}, {"T": "b"}, {"T": "c"}, {"T": "d"}}, want: 2},
		{name: "scenario", records: scenario(), want: 0.9182958340544896},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Entropy(tt.records, "T"), 1e-9)
		})
	}
}

func TestEntropyEquiprobableClasses(t *testing.T) {
	for n := 1; n <= 8; n++ {
		records := make([]Record, 0, n*3)
		for rep := 0; rep < 3; rep++ {
			for c := 0; c < n; c++ {
				records = append(records, Record{"T": string(rune('a' + c))})
			}
		}
		require.InDelta(t, math.Log2(float64(n)), Entropy(records, "T"), 1e-9, "n=%d", n)
	}
}

func TestInformationGain(t *testing.T) {
	records := scenario()
	require.InDelta(t, 0.9182958340544896, InformationGain(records, "A", "T"), 1e-9)

	noise := []Record{
		{"A": "x", "B": "p", "T": "yes"},
		{"A": "y", "B": "p", "T": "no"},
		{"A": "x", "B": "q", "T": "yes"},
		{"A": "y", "B": "q", "T": "no"},
	}
	require.InDelta(t, 0, InformationGain(noise, "B", "T"), 1e-12)
	require.InDelta(t, 1, InformationGain(noise, "A", "T"), 1e-12)
	require.Zero(t, InformationGain(nil, "A", "T"))
}

func TestInformationGainNeverNegative(t *testing.T) {
	records := []Record{
		{"A": "1", "B": "u", "T": "p"},
		{"A": "1", "B": "v", "T": "q"},
		{"A": "2", "B": "u", "T": "p"},
		{"A": "2", "B": "v", "T": "r"},
		{"A": "3", "B": "u", "T": "q"},
		{"A": "3", "B": "u", "T": "q"},
		{"A": "1", "B": "v", "T": "p"},
	}
	for _, attr := range []string{"A", "B", "T"} {
		require.GreaterOrEqual(t, InformationGain(records, attr, "T"), 0.0, attr)
	}
}

func TestBestSplitAttribute(t *testing.T) {
	best, ok := BestSplitAttribute(scenario(), []string{"A"}, "T")
	require.True(t, ok)
	require.Equal(t, "A", best)

	_, ok = BestSplitAttribute(scenario(), nil, "T")
	require.False(t, ok)
}

func TestBestSplitAttributeTieGoesToFirst(t *testing.T) {
	records := []Record{
		{"A": "x", "B": "m", "T": "yes"},
		{"A": "y", "B": "n", "T": "no"},
	}
	best, _ := BestSplitAttribute(records, []string{"A", "B"}, "T")
	require.Equal(t, "A", best)

	best, _ = BestSplitAttribute(records, []string{"B", "A"}, "T")
	require.Equal(t, "B", best)
}

func TestPartitionKeepsFirstSeenOrder(t *testing.T) {
	records := []Record{
		{"A": "z", "T": "1"},
		{"A": "x", "T": "2"},
		{"A": "z", "T": "3"},
	}
	subsets := Partition(records, "A")
	require.Len(t, subsets, 2)
	require.Equal(t, "z", subsets[0].Value)
	require.Equal(t, "x", subsets[1].Value)
	require.Equal(t, "3", subsets[0].Records[1]["T"])
}

func TestMajorityClass(t *testing.T) {
	label, ok := MajorityClass(scenario(), "T")
	require.True(t, ok)
	require.Equal(t, "yes", label)

	tie := []Record{{"T": "b"}, {"T": "a"}, {"T": "a"}, {"T": "b"}}
	label, _ = MajorityClass(tie, "T")
	require.Equal(t, "b", label, "ties resolve to the first value in record order")

	_, ok = MajorityClass(nil, "T")
	require.False(t, ok)
}
