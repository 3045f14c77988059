// Package session keeps the per-client state of the word maker, quiz and
// live feed between requests.
package session

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/asl-api/internal/live"
	"github.com/google/uuid"
)

const (
	DefaultMaxSessions = 256
	DefaultIdleTTL     = 30 * time.Minute
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
)

type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Live    *live.Slot    `json:"-"`
	Watcher *live.Watcher `json:"-"`
	Word    *WordBuilder  `json:"-"`
	Quiz    *QuizTally    `json:"-"`

	lastUsed atomic.Int64 // unix nanoseconds
}

// lastActive is the later of the last request and the last live frame.
func (s *Session) lastActive() time.Time {
	t := time.Unix(0, s.lastUsed.Load())
	if snap, err := s.Live.Latest(); err == nil && snap.At.After(t) {
		t = snap.At
	}
	return t
}

type Options struct {
	MaxLetters  int
	MaxSessions int
	// Sessions with no request and no live frame for this long are dropped.
	IdleTTL    time.Duration
	NewWatcher func(slot *live.Slot) *live.Watcher
	Now        func() time.Time
}

// Store is an in-memory set of sessions. Sessions do not survive a restart.
type Store struct {
	MaxLetters int

	opts     Options
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewStore(opts Options) *Store {
	if opts.MaxLetters <= 0 {
		opts.MaxLetters = DefaultMaxLetters
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		MaxLetters: opts.MaxLetters,
		opts:       opts,
		sessions:   make(map[string]*Session),
	}
}

// Create starts a new session. Idle sessions are dropped first; if the store
// is still full, ErrTooManySessions is returned.
func (s *Store) Create(wordLength int) (*Session, error) {
	word, err := NewWordBuilder(wordLength, s.MaxLetters)
	if err != nil {
		return nil, err
	}
	now := s.opts.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
		Live:      &live.Slot{},
		Word:      word,
		Quiz:      &QuizTally{},
	}
	sess.lastUsed.Store(now.UnixNano())
	if s.opts.NewWatcher != nil {
		sess.Watcher = s.opts.NewWatcher(sess.Live)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	if len(s.sessions) >= s.opts.MaxSessions {
		return nil, ErrTooManySessions
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *Store) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.opts.IdleTTL)
	for id, sess := range s.sessions {
		if sess.lastActive().Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// Get returns the session and marks it as used.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	sess.lastUsed.Store(s.opts.Now().UnixNano())
	return sess, nil
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.sessions[id]
	delete(s.sessions, id)
	return exists
}

// All returns every session, oldest first.
func (s *Store) All() []*Session {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}
