package history

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	return New(logs.NewTestingLog(t), Options{
		File:        filepath.Join(dir, "history.json"),
		CaptureRoot: filepath.Join(dir, "captures"),
		Now:         func() time.Time { return testClock },
	})
}

func solidImage(v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func readRaw(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	m := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestInitEmpty(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	l := s.Init()
	for _, src := range Sources {
		require.Equal(t, 0, l.Len(src))
	}
	_, err := os.Stat(s.File())
	require.True(t, os.IsNotExist(err))
}

func TestInitCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.json"), []byte("{not json"), 0644))
	s := newTestStore(t, dir)
	l := s.Init()
	require.Equal(t, 0, l.Len(SourceUpload))

	// The next save replaces the corrupt file with a well formed one
	_, err := s.Save(SourceQuiz, &QuizEntry{Guess: "A", Correct: "B"})
	require.NoError(t, err)
	m := readRaw(t, s.File())
	require.Len(t, m, 4)
	for _, src := range Sources {
		require.Contains(t, m, string(src))
	}
}

func TestInitMissingKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.json"),
		[]byte(`{"upload":[{"file":"a.jpg","prediction":"A","confidence":0.5,"timestamp":"2024-01-01 00:00:00"}]}`), 0644))
	s := newTestStore(t, dir)
	l := s.Init()
	require.Equal(t, 1, l.Len(SourceUpload))
	require.NotNil(t, l.Live)
	require.NotNil(t, l.Word)
	require.NotNil(t, l.Quiz)
}

func TestInitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	s.Init()
	_, err := s.Save(SourceUpload, &PredictionEntry{File: "x.png", Prediction: "B", Confidence: 0.9})
	require.NoError(t, err)

	// Rewriting the file underneath does not reset the in-memory state
	require.NoError(t, os.WriteFile(s.File(), []byte("{}"), 0644))
	require.Equal(t, 1, s.Init().Len(SourceUpload))
}

func TestSaveUploadSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	e := &PredictionEntry{
		File:       "hand.png",
		Prediction: "C",
		Confidence: 0.87,
		Top5:       []Ranked{{"C", 0.87}, {"O", 0.1}},
		Image:      solidImage(100),
	}
	res, err := s.Save(SourceUpload, e)
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, "2025-03-04 05:06:07", res.Timestamp)
	require.Equal(t, filepath.Join(dir, "captures", "upload", "upload_20250304_050607.jpg"), e.ImagePath)
	require.FileExists(t, e.ImagePath)
	require.Nil(t, e.Image)

	s2 := newTestStore(t, dir)
	l := s2.Init()
	require.Len(t, l.Upload, 1)
	got := l.Upload[0]
	require.Equal(t, "hand.png", got.File)
	require.Equal(t, "C", got.Prediction)
	require.InDelta(t, 0.87, got.Confidence, 1e-9)
	require.Equal(t, e.ImagePath, got.ImagePath)
	require.Equal(t, "2025-03-04 05:06:07", got.Timestamp)
	require.Len(t, got.Top5, 2)
}

func TestSaveFilenameCollision(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	a := &PredictionEntry{File: "a", Prediction: "A", Image: solidImage(1)}
	b := &PredictionEntry{File: "b", Prediction: "A", Image: solidImage(2)}
	_, err := s.Save(SourceLive, a)
	require.NoError(t, err)
	_, err = s.Save(SourceLive, b)
	require.NoError(t, err)
	require.NotEqual(t, a.ImagePath, b.ImagePath)
	require.Equal(t, "live_20250304_050607_2.jpg", filepath.Base(b.ImagePath))
	require.FileExists(t, a.ImagePath)
	require.FileExists(t, b.ImagePath)
}

func TestSaveWord(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	e := &WordEntry{
		Word:     "CAT",
		Meaning:  "A small domesticated feline.",
		Letters:  []Letter{{"C"}, {"A"}, {"T"}},
		File:     "word_maker",
		Payloads: []image.Image{solidImage(10), solidImage(20), solidImage(30)},
	}
	res, err := s.Save(SourceWord, e)
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, "2025-03-04 05:06:07", e.Datetime)
	require.Len(t, e.Images, 3)
	for i, p := range e.Images {
		require.FileExists(t, p)
		require.Equal(t, filepath.Join(dir, "captures", "word_maker", "20250304_050607"), filepath.Dir(p))
		require.Equal(t, []string{"1_C_20250304_050607.jpg", "2_A_20250304_050607.jpg", "3_T_20250304_050607.jpg"}[i], filepath.Base(p))
	}

	l := newTestStore(t, dir).Init()
	require.Len(t, l.Word, 1)
	require.Equal(t, "CAT", l.Word[0].Word)
	require.Equal(t, e.Images, l.Word[0].Images)
}

func TestSaveRejectsMismatches(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	_, err := s.Save(SourceWord, &WordEntry{
		Word:     "HI",
		Letters:  []Letter{{"H"}, {"I"}},
		Payloads: []image.Image{solidImage(1)},
	})
	require.ErrorIs(t, err, ErrLetterMismatch)

	_, err = s.Save(SourceWord, &WordEntry{
		Word:    "HI",
		Letters: []Letter{{"H"}, {"I"}},
		Images:  []string{"h.jpg"},
	})
	require.ErrorIs(t, err, ErrLetterMismatch)

	_, err = s.Save(SourceQuiz, &PredictionEntry{File: "x"})
	require.ErrorIs(t, err, ErrEntryMismatch)

	_, err = s.Save(Source("export"), &PredictionEntry{File: "x"})
	require.ErrorIs(t, err, ErrUnknownSource)

	_, err = os.Stat(s.File())
	require.True(t, os.IsNotExist(err))
}

func TestSaveQuiz(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	e := &QuizEntry{Guess: "B", Correct: "B", Result: true, Image: solidImage(50)}
	_, err := s.Save(SourceQuiz, e)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "captures", "quiz"), filepath.Dir(e.ImagePath))

	l := newTestStore(t, dir).Init()
	require.Len(t, l.Quiz, 1)
	require.True(t, l.Quiz[0].Result)
}

func TestSaveImageFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	// A file where the capture root should be
	require.NoError(t, os.WriteFile(filepath.Join(dir, "captures"), []byte("x"), 0644))

	e := &PredictionEntry{File: "f.jpg", Prediction: "D", ImagePath: "earlier.jpg", Image: solidImage(1)}
	res, err := s.Save(SourceUpload, e)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, "earlier.jpg", e.ImagePath)

	w := &WordEntry{Word: "AB", Letters: []Letter{{"A"}, {"B"}}, Payloads: []image.Image{solidImage(1), solidImage(2)}}
	res, err = s.Save(SourceWord, w)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, []string{"", ""}, w.Images)

	require.Equal(t, 1, newTestStore(t, dir).Init().Len(SourceWord))
}

func TestSavePersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	_, err := s.Save(SourceUpload, &PredictionEntry{File: "one", Prediction: "A"})
	require.NoError(t, err)

	// Replace the history file with a directory so the rename fails
	require.NoError(t, os.Remove(s.File()))
	require.NoError(t, os.Mkdir(s.File(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.File(), "keep"), []byte("x"), 0644))

	two := &PredictionEntry{File: "two", Prediction: "B", Image: solidImage(9)}
	_, err = s.Save(SourceUpload, two)
	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 1, s.Snapshot().Len(SourceUpload))

	// The caller gets its entry back untouched and no orphan image is left
	require.NotNil(t, two.Image)
	require.Empty(t, two.ImagePath)
	require.Empty(t, two.Timestamp)
	files, _ := os.ReadDir(s.CaptureDir(SourceUpload))
	require.Empty(t, files)

	word := &WordEntry{
		Word:     "HI",
		Letters:  []Letter{{"H"}, {"I"}},
		Payloads: []image.Image{solidImage(1), solidImage(2)},
	}
	_, err = s.Save(SourceWord, word)
	require.True(t, errors.As(err, &perr))
	require.Len(t, word.Payloads, 2)
	require.Nil(t, word.Images)
	require.Empty(t, word.Datetime)
}

func TestSaveWordWithoutImages(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	_, err := s.Save(SourceWord, &WordEntry{Word: "HI", Letters: []Letter{{"H"}, {"I"}}})
	require.NoError(t, err)
	_, err = s.Save(SourceWord, &WordEntry{Word: ""})
	require.NoError(t, err)

	got := []WordEntry{}
	require.NoError(t, json.Unmarshal(readRaw(t, s.File())["word"], &got))
	require.Len(t, got, 2)
	require.Equal(t, []string{"", ""}, got[0].Images)

	// Empty lists must be written as [] rather than null
	raw := []map[string]any{}
	require.NoError(t, json.Unmarshal(readRaw(t, s.File())["word"], &raw))
	require.Equal(t, []any{}, raw[1]["letters"])
	require.Equal(t, []any{}, raw[1]["images"])
}

func TestResolveImagePath(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	e := &PredictionEntry{File: "a", Prediction: "A", Image: solidImage(1)}
	_, err := s.Save(SourceUpload, e)
	require.NoError(t, err)

	p, ok := s.ResolveImagePath(e.ImagePath, SourceUpload)
	require.True(t, ok)
	require.Equal(t, e.ImagePath, p)

	// Recorded on another machine
	moved := filepath.Join("/elsewhere/captures/upload", filepath.Base(e.ImagePath))
	p, ok = s.ResolveImagePath(moved, SourceUpload)
	require.True(t, ok)
	require.Equal(t, e.ImagePath, p)

	_, ok = s.ResolveImagePath("/nowhere/missing.jpg", SourceUpload)
	require.False(t, ok)
	_, ok = s.ResolveImagePath("", SourceUpload)
	require.False(t, ok)

	w := &WordEntry{Word: "A", Letters: []Letter{{"A"}}, Payloads: []image.Image{solidImage(1)}}
	_, err = s.Save(SourceWord, w)
	require.NoError(t, err)
	moved = filepath.Join("/old/captures/word_maker", filepath.Base(filepath.Dir(w.Images[0])), filepath.Base(w.Images[0]))
	p, ok = s.ResolveImagePath(moved, SourceWord)
	require.True(t, ok)
	require.Equal(t, w.Images[0], p)
}
