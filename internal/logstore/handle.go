package logstore

import (
	"fmt"
	"io"
	"os"
	"sync"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

// ErrNotConfigured is returned by Handle.Store before Configure succeeded.
var ErrNotConfigured = apperrors.New(apperrors.CodeNotConfigured, "log store used before Configure")

// Handle owns the process log store. It can be configured exactly once.
type Handle struct {
	mu       sync.Mutex
	store    *Store
	Fallback io.Writer // warnings about misuse; stderr when nil
}

// Default is the process-wide handle.
var Default = &Handle{}

// Configure opens the store. Later calls leave the existing store in place,
// print a warning and return it.
func (h *Handle) Configure(opts Options) (*Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store != nil {
		fmt.Fprintln(h.fallback(), "logstore: warning: already configured; configuration can only be set once at startup")
		return h.store, nil
	}
	s, err := Open(opts)
	if err != nil {
		return nil, err
	}
	h.store = s
	s.Log(LevelInfo, "logstore.Configure", fmt.Sprintf("log store initialized in %s, minimumLogLevel: %s, retentionDays: %d",
		s.dir, s.MinLevel(), s.retention))
	return s, nil
}

// Store returns the configured store or ErrNotConfigured.
func (h *Handle) Store() (*Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store == nil {
		return nil, ErrNotConfigured
	}
	return h.store, nil
}

// MustStore is Store for call sites where a missing Configure is a bug.
func (h *Handle) MustStore() *Store {
	s, err := h.Store()
	if err != nil {
		panic(err)
	}
	return s
}

func (h *Handle) fallback() io.Writer {
	if h.Fallback != nil {
		return h.Fallback
	}
	return os.Stderr
}
