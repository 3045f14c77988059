package cli

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

type stubRunner struct{}

func (stubRunner) InputSize() int  { return model.DefaultImageSize * model.DefaultImageSize * 3 }
func (stubRunner) OutputSize() int { return 2 }
func (stubRunner) Close()          {}
func (stubRunner) Run(input []float32) ([]float32, error) {
	return []float32{0.25, 0.75}, nil
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	if a.log == nil {
		a.log = logs.NewTestingLog(t)
	}
	cmd := newRootCmd(a)
	out := bytes.Buffer{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for i := 0; i < 24; i++ {
		img.Set(i, i, color.RGBA{200, 100, 50, 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestPredictCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writePNG(t, "hand.png")
	require.NoError(t, os.WriteFile("notes.txt", []byte("hello"), 0644))

	a := &app{open: func() (*model.Classifier, error) {
		return model.New(stubRunner{}, []string{"A", "B"}, model.Options{})
	}}
	out, err := run(t, a, "predict", "--save", "--top", "2", "hand.png", "notes.txt", "missing.png")
	require.ErrorContains(t, err, "2 of 3 images failed")
	require.Contains(t, out, "hand.png: B (75.0%)")
	require.Contains(t, out, "2. A")
	require.Contains(t, out, "notes.txt: invalid image")

	l := history.New(logs.NewTestingLog(t), history.Options{
		File:        filepath.Join(dir, "history.json"),
		CaptureRoot: filepath.Join(dir, "captures"),
	}).Init()
	require.Len(t, l.Upload, 1)
	require.Equal(t, "hand.png", l.Upload[0].File)
	require.FileExists(t, l.Upload[0].ImagePath)
}

func TestPredictWithoutModel(t *testing.T) {
	t.Chdir(t.TempDir())
	writePNG(t, "hand.png")
	_, err := run(t, &app{}, "predict", "hand.png")
	require.ErrorContains(t, err, "Train and export the model first")
}

func TestHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := run(t, &app{}, "history", "show")
	require.NoError(t, err)
	require.JSONEq(t, `{"upload":[],"live":[],"word":[],"quiz":[]}`, out)

	_, err = run(t, &app{}, "history", "show", "export")
	require.ErrorIs(t, err, history.ErrUnknownSource)

	require.NoError(t, os.MkdirAll(filepath.Join("captures", "live"), 0755))
	writePNG(t, filepath.Join("captures", "live", "live_20250101_000000.jpg"))
	out, err = run(t, &app{}, "history", "resolve", "live", "/old/machine/captures/live/live_20250101_000000.jpg")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "captures", "live", "live_20250101_000000.jpg")+"\n", out)

	out, err = run(t, &app{}, "history", "resolve", "live", "missing.jpg")
	require.NoError(t, err)
	require.Equal(t, "image unavailable\n", out)
}
