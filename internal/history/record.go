package history

import (
	"errors"
	"fmt"
	"image"

	"github.com/Brownie44l1/asl-api/internal/model"
)

// Source identifies the flow that produced a record.
type Source string

const (
	SourceUpload Source = "upload"
	SourceLive   Source = "live"
	SourceWord   Source = "word"
	SourceQuiz   Source = "quiz"
)

var Sources = []Source{SourceUpload, SourceLive, SourceWord, SourceQuiz}

var (
	ErrUnknownSource  = errors.New("unknown history source")
	ErrEntryMismatch  = errors.New("entry type does not match source")
	ErrLetterMismatch = errors.New("word images do not match letters")
)

func ParseSource(s string) (Source, error) {
	for _, src := range Sources {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Entry is one of *PredictionEntry, *WordEntry or *QuizEntry.
type Entry interface {
	accepts(src Source) bool
}

type Ranked struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func RankedFrom(top []model.Ranked) []Ranked {
	out := make([]Ranked, len(top))
	for i, r := range top {
		out[i] = Ranked{Label: r.Label, Confidence: float64(r.Confidence)}
	}
	return out
}

// PredictionEntry is a single classified image from the upload or live flows.
type PredictionEntry struct {
	File       string   `json:"file"`
	ImagePath  string   `json:"image,omitempty"`
	Prediction string   `json:"prediction"`
	Confidence float64  `json:"confidence"`
	Top5       []Ranked `json:"top5,omitempty"`
	Timestamp  string   `json:"timestamp"`

	// Image is written to the capture directory on save and replaced by ImagePath.
	Image image.Image `json:"-"`
}

func (e *PredictionEntry) accepts(src Source) bool {
	return src == SourceUpload || src == SourceLive
}

// NewPredictionEntry fills in label, confidence and the top five from a result.
func NewPredictionEntry(file string, res *model.PredictionResult, img image.Image) *PredictionEntry {
	return &PredictionEntry{
		File:       file,
		Prediction: res.Label,
		Confidence: float64(res.Confidence),
		Top5:       RankedFrom(res.TopK(5)),
		Image:      img,
	}
}

type Letter struct {
	Label string `json:"label"`
}

// WordEntry is a finished word from the word maker. Images[i] is the capture
// of Letters[i].
type WordEntry struct {
	Word      string   `json:"word"`
	Meaning   string   `json:"meaning"`
	Letters   []Letter `json:"letters"`
	Images    []string `json:"images"`
	File      string   `json:"file"`
	Datetime  string   `json:"datetime"`
	Timestamp string   `json:"timestamp"`

	Payloads []image.Image `json:"-"`
}

func (e *WordEntry) accepts(src Source) bool {
	return src == SourceWord
}

// QuizEntry is the outcome of one quiz round.
type QuizEntry struct {
	ImagePath string `json:"image,omitempty"`
	Guess     string `json:"guess"`
	Correct   string `json:"correct"`
	Result    bool   `json:"result"`
	Timestamp string `json:"timestamp"`

	Image image.Image `json:"-"`
}

func (e *QuizEntry) accepts(src Source) bool {
	return src == SourceQuiz
}

// Log is the whole history, grouped by source. All four groups are always
// present when encoded.
type Log struct {
	Upload []*PredictionEntry `json:"upload"`
	Live   []*PredictionEntry `json:"live"`
	Word   []*WordEntry       `json:"word"`
	Quiz   []*QuizEntry       `json:"quiz"`
}

func NewLog() *Log {
	l := &Log{}
	l.fill()
	return l
}

func (l *Log) fill() {
	if l.Upload == nil {
		l.Upload = []*PredictionEntry{}
	}
	if l.Live == nil {
		l.Live = []*PredictionEntry{}
	}
	if l.Word == nil {
		l.Word = []*WordEntry{}
	}
	if l.Quiz == nil {
		l.Quiz = []*QuizEntry{}
	}
}

// Len returns the number of records for src.
func (l *Log) Len(src Source) int {
	switch src {
	case SourceUpload:
		return len(l.Upload)
	case SourceLive:
		return len(l.Live)
	case SourceWord:
		return len(l.Word)
	case SourceQuiz:
		return len(l.Quiz)
	}
	return 0
}

// Records returns the slice for src, suitable for JSON encoding.
func (l *Log) Records(src Source) any {
	switch src {
	case SourceUpload:
		return l.Upload
	case SourceLive:
		return l.Live
	case SourceWord:
		return l.Word
	case SourceQuiz:
		return l.Quiz
	}
	return nil
}

func (l *Log) clone() *Log {
	return &Log{
		Upload: append([]*PredictionEntry{}, l.Upload...),
		Live:   append([]*PredictionEntry{}, l.Live...),
		Word:   append([]*WordEntry{}, l.Word...),
		Quiz:   append([]*QuizEntry{}, l.Quiz...),
	}
}

func (l *Log) add(src Source, e Entry) {
	switch src {
	case SourceUpload:
		l.Upload = append(l.Upload, e.(*PredictionEntry))
	case SourceLive:
		l.Live = append(l.Live, e.(*PredictionEntry))
	case SourceWord:
		l.Word = append(l.Word, e.(*WordEntry))
	case SourceQuiz:
		l.Quiz = append(l.Quiz, e.(*QuizEntry))
	}
}

func (l *Log) dropLast(src Source) {
	switch src {
	case SourceUpload:
		l.Upload = l.Upload[:len(l.Upload)-1]
	case SourceLive:
		l.Live = l.Live[:len(l.Live)-1]
	case SourceWord:
		l.Word = l.Word[:len(l.Word)-1]
	case SourceQuiz:
		l.Quiz = l.Quiz[:len(l.Quiz)-1]
	}
}
