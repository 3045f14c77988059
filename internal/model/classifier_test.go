package model

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func aslClasses() []string {
	classes := []string{}
	for c := 'A'; c <= 'Z'; c++ {
		classes = append(classes, string(c))
	}
	return append(classes, "del", "nothing", "space")
}

// fakeRunner derives logits from the mean input value, so different images
// produce different but deterministic predictions.
type fakeRunner struct {
	inputSize  int
	outputSize int
	calls      int
	fixed      []float32
}

func newFakeRunner(outputs int) *fakeRunner {
	return &fakeRunner{inputSize: DefaultImageSize * DefaultImageSize * 3, outputSize: outputs}
}

func (r *fakeRunner) InputSize() int  { return r.inputSize }
func (r *fakeRunner) OutputSize() int { return r.outputSize }
func (r *fakeRunner) Close()          {}

func (r *fakeRunner) Run(input []float32) ([]float32, error) {
	r.calls++
	if r.fixed != nil {
		return append([]float32(nil), r.fixed...), nil
	}
	var mean float32
	for _, v := range input {
		mean += v
	}
	mean /= float32(len(input))
	out := make([]float32, r.outputSize)
	for i := range out {
		d := mean*float32(r.outputSize) - float32(i)
		out[i] = -d * d
	}
	return out, nil
}

func newTestClassifier(t *testing.T) (*Classifier, *fakeRunner) {
	t.Helper()
	runner := newFakeRunner(len(aslClasses()))
	clf, err := New(runner, aslClasses(), Options{Logits: true})
	require.NoError(t, err)
	return clf, runner
}

func uniformFrame(w, h, channels int, order ChannelOrder, value byte) *Frame {
	pix := make([]byte, w*h*channels)
	for i := range pix {
		pix[i] = value
	}
	return &Frame{Width: w, Height: h, Channels: channels, Order: order, Pix: pix}
}

func TestPredictInvariants(t *testing.T) {
	clf, _ := newTestClassifier(t)
	classes := aslClasses()

	frames := []*Frame{
		uniformFrame(200, 200, 1, RGB, 10),
		uniformFrame(640, 480, 3, BGR, 128),
		uniformFrame(33, 17, 3, RGB, 250),
		uniformFrame(160, 160, 4, RGB, 77),
		uniformFrame(2, 2, 4, BGR, 200),
	}

	for _, f := range frames {
		res, err := clf.Predict(f)
		require.NoError(t, err)
		require.Len(t, res.Probs, len(classes))

		var sum float64
		best := 0
		for i, label := range classes {
			p := res.Probs[label]
			require.GreaterOrEqual(t, p, float32(0))
			require.LessOrEqual(t, p, float32(1))
			sum += float64(p)
			if p > res.Probs[classes[best]] {
				best = i
			}
		}
		require.InDelta(t, 1.0, sum, 1e-3)
		require.Equal(t, best, res.Index)
		require.Equal(t, classes[res.Index], res.Label)
		require.Equal(t, res.Probs[res.Label], res.Confidence)
	}
}

func TestPredictImage(t *testing.T) {
	clf, runner := newTestClassifier(t)

	img := image.NewNRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
		}
	}
	res, err := clf.PredictImage(img)
	require.NoError(t, err)
	require.Equal(t, 1, runner.calls)
	require.Contains(t, aslClasses(), res.Label)
}

func TestPredictRejectsUnsupportedChannels(t *testing.T) {
	clf, runner := newTestClassifier(t)

	_, err := clf.Predict(uniformFrame(50, 50, 2, RGB, 1))
	var perr *PreprocessError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 0, runner.calls)

	_, err = clf.Predict(&Frame{Width: 10, Height: 10, Channels: 3, Pix: make([]byte, 10)})
	require.True(t, errors.As(err, &perr))

	_, err = clf.Predict(nil)
	require.True(t, errors.As(err, &perr))
}

func TestPredictTensorLength(t *testing.T) {
	clf, _ := newTestClassifier(t)
	_, err := clf.PredictTensor(make([]float32, 12))
	var perr *PreprocessError
	require.True(t, errors.As(err, &perr))

	res, err := clf.PredictTensor(make([]float32, clf.InputSize()))
	require.NoError(t, err)
	require.Equal(t, "A", res.Label)
}

func TestNewRejectsMismatchedClassMap(t *testing.T) {
	_, err := New(newFakeRunner(5), aslClasses(), Options{})
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	require.Contains(t, lerr.Remedy(), "Train and export the model")

	runner := newFakeRunner(len(aslClasses()))
	_, err = New(runner, aslClasses(), Options{ImageSize: 224})
	require.True(t, errors.As(err, &lerr))
}

func TestProbabilitiesPassThroughWithoutLogits(t *testing.T) {
	runner := newFakeRunner(3)
	runner.fixed = []float32{0.2, 0.7, 0.1}
	clf, err := New(runner, []string{"A", "B", "C"}, Options{})
	require.NoError(t, err)

	res, err := clf.Predict(uniformFrame(160, 160, 3, RGB, 0))
	require.NoError(t, err)
	require.Equal(t, "B", res.Label)
	require.Equal(t, 1, res.Index)
	require.Equal(t, float32(0.7), res.Confidence)
}

func TestTopK(t *testing.T) {
	runner := newFakeRunner(6)
	runner.fixed = []float32{0.05, 0.3, 0.05, 0.4, 0.15, 0.05}
	clf, err := New(runner, []string{"A", "B", "C", "D", "E", "F"}, Options{})
	require.NoError(t, err)

	res, err := clf.Predict(uniformFrame(160, 160, 1, RGB, 0))
	require.NoError(t, err)

	top := res.TopK(5)
	require.Equal(t, []Ranked{
		{Label: "D", Confidence: 0.4},
		{Label: "B", Confidence: 0.3},
		{Label: "E", Confidence: 0.15},
		{Label: "A", Confidence: 0.05},
		{Label: "C", Confidence: 0.05},
	}, top)
	require.Len(t, res.TopK(100), 6)
	require.Nil(t, res.TopK(0))
}

func TestLoaderCachesSuccessOnly(t *testing.T) {
	opens := 0
	loader := NewLoader(func() (*Classifier, error) {
		opens++
		if opens == 1 {
			return nil, &LoadError{Path: "model.onnx", Err: errors.New("missing")}
		}
		return New(newFakeRunner(3), []string{"A", "B", "C"}, Options{})
	})

	_, err := loader.Get()
	require.Error(t, err)
	require.False(t, loader.Loaded())

	first, err := loader.Get()
	require.NoError(t, err)
	second, err := loader.Get()
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 2, opens)
	require.True(t, loader.Loaded())
}
