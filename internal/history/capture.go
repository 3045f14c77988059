package history

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
)

var captureDirs = map[Source]string{
	SourceUpload: "upload",
	SourceLive:   "live",
	SourceWord:   "word_maker",
	SourceQuiz:   "quiz",
}

// CaptureDir is where images of src are written.
func (s *Store) CaptureDir(src Source) string {
	return filepath.Join(s.opts.CaptureRoot, captureDirs[src])
}

// writeJPEG encodes img into dir/base.jpg, adding a numeric suffix if a file
// of that name already exists.
func (s *Store) writeJPEG(dir, base string, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	f, path, err := createUnique(dir, base, ".jpg")
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode %v: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func createUnique(dir, base, ext string) (*os.File, string, error) {
	for i := 1; ; i++ {
		name := base + ext
		if i > 1 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return f, path, err
	}
}

// mkdirUnique creates parent/name, or parent/name_2 etc if it is taken.
func mkdirUnique(parent, name string) (string, error) {
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", err
	}
	for i := 1; ; i++ {
		dir := filepath.Join(parent, name)
		if i > 1 {
			dir = filepath.Join(parent, fmt.Sprintf("%s_%d", name, i))
		}
		err := os.Mkdir(dir, 0755)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return dir, err
	}
}

// fileLabel makes a class label safe to embed in a filename.
func fileLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, label)
}

// ResolveImagePath finds the image a record refers to. Paths written on
// another machine or from another working directory are retried inside the
// source's capture directory. Returns false if the image is gone.
func (s *Store) ResolveImagePath(raw string, src Source) (string, bool) {
	if raw == "" {
		return "", false
	}
	if isFile(raw) {
		return raw, true
	}
	if _, ok := captureDirs[src]; !ok {
		return "", false
	}
	dir := s.CaptureDir(src)
	base := filepath.Base(raw)
	if alt := filepath.Join(dir, base); isFile(alt) {
		return alt, true
	}
	// Word captures live one directory down
	if src == SourceWord {
		parent := filepath.Base(filepath.Dir(raw))
		if alt := filepath.Join(dir, parent, base); parent != "." && isFile(alt) {
			return alt, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
