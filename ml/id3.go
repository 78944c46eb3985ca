package ml

// Build grows an ID3 tree over records using the candidate attributes in the
// given order. The result is deterministic for a given input ordering.
//
// Stopping rules, checked in order: a pure set becomes a leaf; no attributes
// left gives a majority leaf; no usable split gives a majority leaf.
func Build(records []Record, attributes []string, target string) *Node {
	if len(records) == 0 {
		return NewLeaf("")
	}

	if Entropy(records, target) == 0 {
		return NewLeaf(records[0][target])
	}

	majority, _ := MajorityClass(records, target)
	if len(attributes) == 0 {
		return NewLeaf(majority)
	}

	best, ok := BestSplitAttribute(records, attributes, target)
	if !ok {
		return NewLeaf(majority)
	}

	remaining := without(attributes, best)
	subsets := Partition(records, best)
	node := &Node{
		Attribute: best,
		Values:    make([]string, 0, len(subsets)),
		Children:  make(map[string]*Node, len(subsets)),
	}
	for _, subset := range subsets {
		node.Values = append(node.Values, subset.Value)
		if len(subset.Records) == 0 {
			node.Children[subset.Value] = NewLeaf(majority)
			continue
		}
		node.Children[subset.Value] = Build(subset.Records, remaining, target)
	}
	return node
}

func without(attributes []string, drop string) []string {
	out := make([]string, 0, len(attributes))
	for _, attr := range attributes {
		if attr != drop {
			out = append(out, attr)
		}
	}
	return out
}
