package ml

import (
	"errors"
)

func LoadModel(modelType, path string) (*Node, error) {
	switch modelType {
	case "id3", "decision_tree":
		root := &Node{}
		if err := root.Load(path); err != nil {
			return nil, err
		}
		return root, nil
	default:
		return nil, errors.New("unsupported model type")
	}
}
