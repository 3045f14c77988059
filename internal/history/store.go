package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
)

const (
	TimeLayout      = "2006-01-02 15:04:05"
	FileStampLayout = "20060102_150405"
)

// PersistError means the history file could not be written, so the record is
// not durable.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to write history %v: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type Options struct {
	File        string // eg "history.json"
	CaptureRoot string // eg "captures"
	JPEGQuality int
	Now         func() time.Time
}

// SaveResult reports the stamp given to a saved record, and any images that
// could not be written. The record itself was saved regardless.
type SaveResult struct {
	Timestamp string
	Warnings  []error
}

// Store is the durable prediction history. Every save rewrites the whole file.
// It assumes a single process owns the file.
type Store struct {
	opts Options
	log  logs.Log

	mu   sync.Mutex
	data *Log
}

func New(log logs.Log, opts Options) *Store {
	if opts.File == "" {
		opts.File = "history.json"
	}
	if opts.CaptureRoot == "" {
		opts.CaptureRoot = "captures"
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts: opts,
		log:  logs.NewPrefixLogger(log, "history:"),
	}
}

func (s *Store) File() string {
	return s.opts.File
}

// Init loads the history file the first time it is called. Later calls
// return the in-memory state untouched. A missing or corrupt file yields an
// empty history.
func (s *Store) Init() *Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	return s.data.clone()
}

func (s *Store) initLocked() {
	if s.data != nil {
		return
	}
	s.data = NewLog()

	raw, err := os.ReadFile(s.opts.File)
	if os.IsNotExist(err) {
		return
	} else if err != nil {
		s.log.Warnf("Unable to read %v, starting with empty history: %v", s.opts.File, err)
		return
	}

	loaded := &Log{}
	if err := json.Unmarshal(raw, loaded); err != nil {
		s.log.Warnf("Unable to parse %v, starting with empty history: %v", s.opts.File, err)
		return
	}
	loaded.fill()
	s.data = loaded
	s.log.Infof("Loaded %v upload, %v live, %v word, %v quiz records from %v",
		len(loaded.Upload), len(loaded.Live), len(loaded.Word), len(loaded.Quiz), s.opts.File)
}

// Snapshot returns a copy of the record lists. Records themselves are shared
// and must not be modified.
func (s *Store) Snapshot() *Log {
	return s.Init()
}

// Save stamps e, writes its image payloads to the capture directory, appends
// it under src and rewrites the history file. e is updated in place: payloads
// are replaced by file paths. If the history file cannot be written, e is put
// back as it was and its new images are removed.
func (s *Store) Save(src Source, e Entry) (*SaveResult, error) {
	if _, ok := captureDirs[src]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	if e == nil || !e.accepts(src) {
		return nil, fmt.Errorf("%w: %T under %q", ErrEntryMismatch, e, src)
	}
	if w, ok := e.(*WordEntry); ok {
		if err := checkWordImages(w); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()

	now := s.opts.Now()
	stamp := now.Format(TimeLayout)
	fileStamp := now.Format(FileStampLayout)
	result := &SaveResult{Timestamp: stamp}
	restore := keepEntry(e)
	var written []string

	switch e := e.(type) {
	case *PredictionEntry:
		e.Timestamp = stamp
		if e.Image != nil {
			path, err := s.writeJPEG(s.CaptureDir(src), fmt.Sprintf("%s_%s", src, fileStamp), e.Image)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("image for %v not saved: %w", e.File, err))
			} else {
				e.ImagePath = path
				written = append(written, path)
			}
			e.Image = nil
		}
	case *QuizEntry:
		e.Timestamp = stamp
		if e.Image != nil {
			path, err := s.writeJPEG(s.CaptureDir(src), fmt.Sprintf("%s_%s", src, fileStamp), e.Image)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("quiz image not saved: %w", err))
			} else {
				e.ImagePath = path
				written = append(written, path)
			}
			e.Image = nil
		}
	case *WordEntry:
		e.Timestamp = stamp
		if e.Datetime == "" {
			e.Datetime = stamp
		}
		if e.Letters == nil {
			e.Letters = []Letter{}
		}
		switch {
		case len(e.Payloads) != 0:
			e.Images = s.writeWordImages(e, fileStamp, result)
			e.Payloads = nil
			written = e.Images
		case len(e.Images) == 0:
			e.Images = make([]string, len(e.Letters))
		}
	}

	s.data.add(src, e)
	if err := s.persistLocked(); err != nil {
		s.data.dropLast(src)
		removeCaptures(written)
		restore()
		return nil, err
	}

	for _, w := range result.Warnings {
		s.log.Warnf("%v", w)
	}
	s.log.Infof("Saved %v record (%v total)", src, s.data.Len(src))
	return result, nil
}

func (s *Store) writeWordImages(e *WordEntry, fileStamp string, result *SaveResult) []string {
	paths := make([]string, len(e.Payloads))
	dir, err := mkdirUnique(s.CaptureDir(SourceWord), fileStamp)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Errorf("word images for %q not saved: %w", e.Word, err))
		return paths
	}
	for i, img := range e.Payloads {
		if img == nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("letter %d of %q has no image", i+1, e.Word))
			continue
		}
		base := fmt.Sprintf("%d_%s_%s", i+1, fileLabel(e.Letters[i].Label), fileStamp)
		path, err := s.writeJPEG(dir, base, img)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("letter %d of %q not saved: %w", i+1, e.Word, err))
			continue
		}
		paths[i] = path
	}
	return paths
}

// persistLocked writes the whole log to a temporary file and renames it over
// the history file.
func (s *Store) persistLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return &PersistError{Path: s.opts.File, Err: err}
	}

	dir := filepath.Dir(s.opts.File)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistError{Path: s.opts.File, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return &PersistError{Path: s.opts.File, Err: err}
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &PersistError{Path: s.opts.File, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &PersistError{Path: s.opts.File, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.opts.File); err != nil {
		os.Remove(tmp.Name())
		return &PersistError{Path: s.opts.File, Err: err}
	}
	return nil
}

// checkWordImages enforces one image slot per letter. An entry may carry
// either decoded images to write or paths that were already written.
func checkWordImages(w *WordEntry) error {
	switch {
	case len(w.Payloads) != 0 && len(w.Payloads) != len(w.Letters):
		return fmt.Errorf("%w: %d images for %d letters", ErrLetterMismatch, len(w.Payloads), len(w.Letters))
	case len(w.Payloads) == 0 && len(w.Images) != 0 && len(w.Images) != len(w.Letters):
		return fmt.Errorf("%w: %d image paths for %d letters", ErrLetterMismatch, len(w.Images), len(w.Letters))
	}
	return nil
}

// keepEntry returns a func that puts e back the way the caller passed it.
func keepEntry(e Entry) func() {
	switch e := e.(type) {
	case *PredictionEntry:
		orig := *e
		return func() { *e = orig }
	case *QuizEntry:
		orig := *e
		return func() { *e = orig }
	case *WordEntry:
		orig := *e
		return func() { *e = orig }
	}
	return func() {}
}

// removeCaptures deletes the images written for an entry that was not saved.
func removeCaptures(paths []string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}
