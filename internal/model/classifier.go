package model

import (
	"fmt"
	"image"
	"math"

	"github.com/cyclopcam/logs"
)

// Config describes where the exported model lives and how to feed it.
type Config struct {
	Path          string `yaml:"path"`
	ClassMap      string `yaml:"class_map"`
	SharedLibrary string `yaml:"shared_library"`
	InputName     string `yaml:"input_name"`
	OutputName    string `yaml:"output_name"`
	ImageSize     int    `yaml:"image_size"`
	Layout        Layout `yaml:"layout"`
	Logits        bool   `yaml:"logits"` // apply softmax to the raw output
}

type Options struct {
	ImageSize int
	Layout    Layout
	Logits    bool
}

// Classifier maps images to ASL labels. The class map and runner are
// read-only after construction.
type Classifier struct {
	runner  Runner
	classes []string
	opts    Options
}

// Open loads the class map and the ONNX model described by cfg.
func Open(cfg Config, log logs.Log) (*Classifier, error) {
	classes, err := LoadClassMap(cfg.ClassMap)
	if err != nil {
		return nil, err
	}

	size := cfg.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}
	inputShape := []int64{1, int64(size), int64(size), 3}
	if cfg.Layout.normalized() == LayoutNCHW {
		inputShape = []int64{1, 3, int64(size), int64(size)}
	}

	log.Infof("Loading model from %v (%v classes, input %v)", cfg.Path, len(classes), inputShape)

	runner, err := NewONNXRunner(RunnerConfig{
		ModelPath:     cfg.Path,
		SharedLibrary: cfg.SharedLibrary,
		InputName:     cfg.InputName,
		OutputName:    cfg.OutputName,
		InputShape:    inputShape,
		OutputShape:   []int64{1, int64(len(classes))},
	})
	if err != nil {
		return nil, err
	}

	clf, err := New(runner, classes, Options{ImageSize: size, Layout: cfg.Layout, Logits: cfg.Logits})
	if err != nil {
		runner.Close()
		return nil, err
	}
	return clf, nil
}

// New wraps an already created runner.
func New(runner Runner, classes []string, opts Options) (*Classifier, error) {
	if opts.ImageSize <= 0 {
		opts.ImageSize = DefaultImageSize
	}
	opts.Layout = opts.Layout.normalized()

	if len(classes) == 0 {
		return nil, &LoadError{Path: "class map", Err: fmt.Errorf("no classes")}
	}
	if runner.OutputSize() != len(classes) {
		return nil, &LoadError{Path: "class map", Err: fmt.Errorf("model has %d outputs but class map has %d labels", runner.OutputSize(), len(classes))}
	}
	if want := opts.ImageSize * opts.ImageSize * 3; runner.InputSize() != want {
		return nil, &LoadError{Path: "model", Err: fmt.Errorf("model input has %d values, expected %d", runner.InputSize(), want)}
	}

	return &Classifier{
		runner:  runner,
		classes: append([]string(nil), classes...),
		opts:    opts,
	}, nil
}

func (c *Classifier) Classes() []string {
	return append([]string(nil), c.classes...)
}

// InputSize is the number of float32 values PredictTensor expects.
func (c *Classifier) InputSize() int {
	return c.runner.InputSize()
}

func (c *Classifier) Predict(f *Frame) (*PredictionResult, error) {
	input, err := Normalize(f, c.opts.ImageSize, c.opts.Layout)
	if err != nil {
		return nil, err
	}
	return c.PredictTensor(input)
}

func (c *Classifier) PredictImage(img image.Image) (*PredictionResult, error) {
	return c.Predict(FrameFromImage(img))
}

// PredictTensor runs an already normalized input.
func (c *Classifier) PredictTensor(input []float32) (*PredictionResult, error) {
	if len(input) != c.runner.InputSize() {
		return nil, preprocessErrorf("expected %d values, got %d", c.runner.InputSize(), len(input))
	}

	scores, err := c.runner.Run(input)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(c.classes) {
		return nil, fmt.Errorf("model returned %d scores for %d classes", len(scores), len(c.classes))
	}
	if c.opts.Logits {
		softmax(scores)
	}
	return newResult(c.classes, scores), nil
}

func (c *Classifier) Close() {
	c.runner.Close()
}

func softmax(v []float32) {
	maxVal := v[0]
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxVal))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}
