package ml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Node is either a leaf holding a label or an internal node splitting on
// Attribute. Values lists the child keys in the order they were observed.
type Node struct {
	Label     string           `json:"label,omitempty"`
	Attribute string           `json:"attribute,omitempty"`
	Values    []string         `json:"values,omitempty"`
	Children  map[string]*Node `json:"children,omitempty"`
}

func NewLeaf(label string) *Node {
	return &Node{Label: label}
}

func (n *Node) IsLeaf() bool {
	return n.Attribute == ""
}

// Child returns the branch taken for value, if one was grown.
func (n *Node) Child(value string) (*Node, bool) {
	child, ok := n.Children[value]
	return child, ok
}

// Depth is the number of edges on the longest root-to-leaf path.
func (n *Node) Depth() int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	deepest := 0
	for _, child := range n.Children {
		if d := child.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// Size counts every node in the tree.
func (n *Node) Size() int {
	if n == nil {
		return 0
	}
	size := 1
	for _, child := range n.Children {
		size += child.Size()
	}
	return size
}

// Equal reports whether two trees have the same shape, splits and labels.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Label != other.Label || n.Attribute != other.Attribute {
		return false
	}
	if len(n.Values) != len(other.Values) || len(n.Children) != len(other.Children) {
		return false
	}
	for i, value := range n.Values {
		if other.Values[i] != value {
			return false
		}
		if !n.Children[value].Equal(other.Children[value]) {
			return false
		}
	}
	return true
}

// Render writes an indented, human readable view of the tree.
func (n *Node) Render(w io.Writer) error {
	return n.render(w, 0)
}

func (n *Node) render(w io.Writer, depth int) error {
	indent := strings.Repeat("  ", depth)
	if n.IsLeaf() {
		_, err := fmt.Fprintf(w, "%s=> %s\n", indent, n.Label)
		return err
	}
	for _, value := range n.Values {
		if _, err := fmt.Fprintf(w, "%s%s = %s\n", indent, n.Attribute, value); err != nil {
			return err
		}
		if err := n.Children[value].render(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) Save(path string) error {
	if n == nil {
		return errors.New("model not trained")
	}
	payload, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (n *Node) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var root Node
	if err := json.Unmarshal(payload, &root); err != nil {
		return err
	}
	if err := root.check(); err != nil {
		return err
	}
	*n = root
	return nil
}

func (n *Node) check() error {
	if n.IsLeaf() {
		if len(n.Children) != 0 {
			return errors.New("leaf node has children")
		}
		return nil
	}
	if len(n.Values) != len(n.Children) {
		return fmt.Errorf("node %q: values and children size mismatch", n.Attribute)
	}
	for _, value := range n.Values {
		child, ok := n.Children[value]
		if !ok || child == nil {
			return fmt.Errorf("node %q: missing child for %q", n.Attribute, value)
		}
		if err := child.check(); err != nil {
			return err
		}
	}
	return nil
}
