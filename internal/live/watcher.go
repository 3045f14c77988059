package live

import (
	"sync"
	"time"

	"github.com/Brownie44l1/asl-api/internal/model"
)

const DefaultCooldown = 1500 * time.Millisecond

type PredictFunc func(f *model.Frame) (*model.PredictionResult, error)

// Reading is the outcome of the last prediction made on the feed.
type Reading struct {
	Seq        uint64                  `json:"seq"`
	At         time.Time               `json:"at"`
	Label      string                  `json:"label,omitempty"`
	Confidence float32                 `json:"confidence"`
	Result     *model.PredictionResult `json:"-"`
	Error      string                  `json:"error,omitempty"`
}

// Watcher predicts on incoming frames, but no more than once per cooldown.
type Watcher struct {
	predict  PredictFunc
	cooldown time.Duration

	mu      sync.Mutex
	last    time.Time
	reading *Reading
}

func NewWatcher(predict PredictFunc, cooldown time.Duration) *Watcher {
	return &Watcher{
		predict:  predict,
		cooldown: cooldown,
	}
}

// Offer runs a prediction on snap if the cooldown has elapsed. It returns the
// new reading, or nil if the frame was skipped.
func (w *Watcher) Offer(snap *Snapshot) *Reading {
	w.mu.Lock()
	if !w.last.IsZero() && snap.At.Sub(w.last) < w.cooldown {
		w.mu.Unlock()
		return nil
	}
	w.last = snap.At
	w.mu.Unlock()

	r := &Reading{Seq: snap.Seq, At: snap.At}
	res, err := w.predict(snap.Frame)
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Label = res.Label
		r.Confidence = res.Confidence
		r.Result = res
	}

	w.mu.Lock()
	if w.reading == nil || w.reading.Seq < r.Seq {
		w.reading = r
	}
	w.mu.Unlock()
	return r
}

func (w *Watcher) Latest() (*Reading, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reading, w.reading != nil
}
