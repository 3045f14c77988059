package session

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/Brownie44l1/asl-api/internal/model"
)

const DefaultMaxLetters = 18

var (
	ErrWordComplete   = errors.New("word is already complete")
	ErrWordIncomplete = errors.New("word is not complete")
	ErrWordLength     = errors.New("invalid word length")
)

type CapturedLetter struct {
	Label      string       `json:"label"`
	Confidence float32      `json:"confidence"`
	Frame      *model.Frame `json:"-"`
}

// WordBuilder collects one predicted letter at a time until the target length
// is reached.
type WordBuilder struct {
	mu      sync.Mutex
	target  int
	letters []CapturedLetter
}

func NewWordBuilder(target, max int) (*WordBuilder, error) {
	if target < 1 || target > max {
		return nil, fmt.Errorf("%w: %d (must be 1 to %d)", ErrWordLength, target, max)
	}
	return &WordBuilder{target: target}, nil
}

// Add appends a letter and returns how many letters have been captured.
func (w *WordBuilder) Add(label string, confidence float32, frame *model.Frame) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.letters) >= w.target {
		return len(w.letters), ErrWordComplete
	}
	w.letters = append(w.letters, CapturedLetter{Label: label, Confidence: confidence, Frame: frame})
	return len(w.letters), nil
}

func (w *WordBuilder) Target() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

func (w *WordBuilder) Complete() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.letters) == w.target
}

func (w *WordBuilder) Letters() []CapturedLetter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]CapturedLetter(nil), w.letters...)
}

// Word spells the captured letters. The "space" class becomes a blank, and
// "del" and "nothing" are not spelled.
func (w *WordBuilder) Word() string {
	return spell(w.Letters())
}

func spell(letters []CapturedLetter) string {
	sb := strings.Builder{}
	for _, l := range letters {
		switch l.Label {
		case "space":
			sb.WriteByte(' ')
		case "del", "nothing":
		default:
			sb.WriteString(l.Label)
		}
	}
	return sb.String()
}

// Reset drops the captured letters. A positive target also changes the word
// length.
func (w *WordBuilder) Reset(target, max int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if target > 0 {
		if target > max {
			return fmt.Errorf("%w: %d (must be 1 to %d)", ErrWordLength, target, max)
		}
		w.target = target
	}
	w.letters = nil
	return nil
}

// Finished is a complete word, ready to be recorded.
type Finished struct {
	Word    string
	Letters []CapturedLetter
	Images  []image.Image
}

// Finish returns the complete word. The builder keeps its letters until Reset,
// so a word that fails to save can be finished again. Letters without a usable
// frame have a nil image.
func (w *WordBuilder) Finish() (*Finished, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.letters) != w.target {
		return nil, fmt.Errorf("%w: %d of %d letters", ErrWordIncomplete, len(w.letters), w.target)
	}
	f := &Finished{
		Word:    spell(w.letters),
		Letters: append([]CapturedLetter(nil), w.letters...),
		Images:  make([]image.Image, len(w.letters)),
	}
	for i, l := range w.letters {
		if l.Frame == nil {
			continue
		}
		if img, err := l.Frame.Image(); err == nil {
			f.Images[i] = img
		}
	}
	return f, nil
}
