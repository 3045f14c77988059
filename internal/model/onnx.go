package model

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Runner executes one forward pass of a model over a preprocessed input tensor.
type Runner interface {
	Run(input []float32) ([]float32, error)
	InputSize() int
	OutputSize() int
	Close()
}

type RunnerConfig struct {
	ModelPath     string
	SharedLibrary string // path to libonnxruntime, empty to use the default search path
	InputName     string
	OutputName    string
	InputShape    []int64
	OutputShape   []int64
}

// onnxRunner owns a single ONNX Runtime session with pre-allocated tensors.
// The tensors are shared by every call, so Run is serialized.
type onnxRunner struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
	outputSize   int
}

func NewONNXRunner(cfg RunnerConfig) (Runner, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, &LoadError{Path: cfg.ModelPath, Err: err}
	}

	if cfg.SharedLibrary != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, &LoadError{Path: cfg.ModelPath, Err: fmt.Errorf("failed to initialize ONNX environment: %w", err)}
		}
	}

	inputShape := ort.NewShape(cfg.InputShape...)
	outputShape := ort.NewShape(cfg.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, &LoadError{Path: cfg.ModelPath, Err: fmt.Errorf("failed to create ONNX session: %w", err)}
	}

	return &onnxRunner{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputSize:    int(inputShape.FlattenedSize()),
		outputSize:   int(outputShape.FlattenedSize()),
	}, nil
}

func (r *onnxRunner) InputSize() int  { return r.inputSize }
func (r *onnxRunner) OutputSize() int { return r.outputSize }

func (r *onnxRunner) Run(input []float32) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copy(r.inputTensor.GetData(), input)

	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// The output buffer is reused by the next run
	out := make([]float32, r.outputSize)
	copy(out, r.outputTensor.GetData())
	return out, nil
}

func (r *onnxRunner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inputTensor != nil {
		r.inputTensor.Destroy()
	}
	if r.outputTensor != nil {
		r.outputTensor.Destroy()
	}
	if r.session != nil {
		r.session.Destroy()
	}
	ort.DestroyEnvironment()
}
