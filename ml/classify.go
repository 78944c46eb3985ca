package ml

// Classify walks the tree with the record's values. It reports false when the
// record carries a value no branch was grown for.
func Classify(tree *Node, record Record) (string, bool) {
	node := tree
	for node != nil {
		if node.IsLeaf() {
			return node.Label, true
		}
		next, ok := node.Child(record[node.Attribute])
		if !ok {
			return "", false
		}
		node = next
	}
	return "", false
}

// ClassifyWithFallback behaves like Classify, but a dead end resolves to the
// majority label of the whole training set rather than of the local branch.
func ClassifyWithFallback(tree *Node, record Record, training []Record, target string) (string, bool) {
	if label, ok := Classify(tree, record); ok {
		return label, true
	}
	if len(training) == 0 || target == "" {
		return "", false
	}
	return MajorityClass(training, target)
}

// Tree binds a built root to the data it was grown from.
type Tree struct {
	Root     *Node
	Training []Record
	Target   string
}

func (t *Tree) Classify(record Record) (string, bool) {
	return ClassifyWithFallback(t.Root, record, t.Training, t.Target)
}
