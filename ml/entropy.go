package ml

import "math"

// Subset is the group of records sharing one value of a split attribute.
type Subset struct {
	Value   string
	Records []Record
}

// Frequencies counts every distinct value of attribute across records.
//
// Complexity: O(n)
func Frequencies(records []Record, attribute string) map[string]int {
	counts := make(map[string]int)
	for _, record := range records {
		counts[record[attribute]]++
	}
	return counts
}

// Entropy returns the Shannon entropy (base 2) of the target distribution.
// An empty record set has entropy 0.
func Entropy(records []Record, target string) float64 {
	if len(records) == 0 {
		return 0
	}
	total := float64(len(records))
	entropy := 0.0
	for _, count := range Frequencies(records, target) {
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Partition groups records by their value of attribute. Subsets are returned in
// the order their value is first seen, and keep record order inside each subset.
func Partition(records []Record, attribute string) []Subset {
	index := make(map[string]int)
	subsets := make([]Subset, 0)
	for _, record := range records {
		value := record[attribute]
		i, ok := index[value]
		if !ok {
			i = len(subsets)
			index[value] = i
			subsets = append(subsets, Subset{Value: value})
		}
		subsets[i].Records = append(subsets[i].Records, record)
	}
	return subsets
}

// InformationGain is the entropy reduction obtained by splitting on attribute.
func InformationGain(records []Record, attribute, target string) float64 {
	if len(records) == 0 {
		return 0
	}
	total := float64(len(records))
	remaining := 0.0
	for _, subset := range Partition(records, attribute) {
		remaining += float64(len(subset.Records)) / total * Entropy(subset.Records, target)
	}
	gain := Entropy(records, target) - remaining
	// float noise can push a zero gain slightly negative
	if gain < 0 && gain > -1e-12 {
		return 0
	}
	return gain
}

// BestSplitAttribute returns the attribute with the highest information gain.
// Candidates are scanned in order and only a strictly greater gain replaces the
// current best, so the earliest attribute wins ties.
func BestSplitAttribute(records []Record, attributes []string, target string) (string, bool) {
	best := ""
	found := false
	maxGain := math.Inf(-1)
	for _, attribute := range attributes {
		gain := InformationGain(records, attribute, target)
		if gain > maxGain {
			maxGain = gain
			best = attribute
			found = true
		}
	}
	return best, found
}

// MajorityClass returns the most frequent target value. Ties go to the value
// that occurs first in records.
func MajorityClass(records []Record, target string) (string, bool) {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, record := range records {
		value := record[target]
		if _, seen := counts[value]; !seen {
			order = append(order, value)
		}
		counts[value]++
	}
	if len(order) == 0 {
		return "", false
	}
	majority := order[0]
	for _, value := range order[1:] {
		if counts[value] > counts[majority] {
			majority = value
		}
	}
	return majority, true
}
