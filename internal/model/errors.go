package model

import "fmt"

// LoadError means the model or class map could not be loaded. The classifier
// is unusable until the artifact is fixed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Remedy is a message suitable for showing to an operator.
func (e *LoadError) Remedy() string {
	return fmt.Sprintf("Model not available (%v). Train and export the model first, then check model.path and model.class_map in the config.", e.Err)
}

// PreprocessError means one image could not be turned into a model input.
// Other images in the same batch are unaffected.
type PreprocessError struct {
	Reason string
}

func (e *PreprocessError) Error() string {
	return "preprocess: " + e.Reason
}

func preprocessErrorf(format string, args ...any) error {
	return &PreprocessError{Reason: fmt.Sprintf(format, args...)}
}
