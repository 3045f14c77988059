// Package live holds the most recent frame of a camera feed and the
// predictions made from it.
package live

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/asl-api/internal/model"
)

var ErrNoFrame = errors.New("no frame received yet")

type Snapshot struct {
	Frame *model.Frame
	At    time.Time
	Seq   uint64
}

// Slot keeps only the latest frame. Older frames are dropped without being
// looked at.
type Slot struct {
	cur atomic.Pointer[Snapshot]
	seq atomic.Uint64
}

// Store replaces the current frame. f must not be modified afterwards.
func (s *Slot) Store(f *model.Frame, at time.Time) *Snapshot {
	snap := &Snapshot{Frame: f, At: at, Seq: s.seq.Add(1)}
	s.cur.Store(snap)
	return snap
}

func (s *Slot) Latest() (*Snapshot, error) {
	snap := s.cur.Load()
	if snap == nil {
		return nil, ErrNoFrame
	}
	return snap, nil
}
