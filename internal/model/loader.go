package model

import "sync"

// Loader opens the classifier on first use and hands out the same instance
// afterwards. A failed open is not remembered, so a later call retries.
type Loader struct {
	open func() (*Classifier, error)

	mu  sync.Mutex
	clf *Classifier
}

func NewLoader(open func() (*Classifier, error)) *Loader {
	return &Loader{open: open}
}

func (l *Loader) Get() (*Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clf != nil {
		return l.clf, nil
	}
	clf, err := l.open()
	if err != nil {
		return nil, err
	}
	l.clf = clf
	return clf, nil
}

func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clf != nil
}

func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clf != nil {
		l.clf.Close()
		l.clf = nil
	}
}
