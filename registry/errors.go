package registry

import "errors"

var (
	// ErrDatasetEmpty is returned when a dataset has no usable records.
	ErrDatasetEmpty = errors.New("dataset is empty")
	// ErrModelNotFound is returned for a dataset key no model was built for.
	ErrModelNotFound = errors.New("model not found")
	// ErrUnclassifiable is returned when no label could be produced.
	ErrUnclassifiable = errors.New("record cannot be classified")
	// ErrNoHoldout is returned by Evaluate when the model has no held-out records.
	ErrNoHoldout = errors.New("no held-out records")
)
