// Package logstore writes a date-partitioned, append-only log file per day
// and prunes files past their retention window.
package logstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	fileSuffix           = "-screenshot.log"
	dateLayout           = "2006-01-02"
	localLayout          = "2006-01-02 15:04:05"
	DefaultRetentionDays = 7
)

// Options configure a Store.
type Options struct {
	Dir           string
	RetentionDays int
	MinLevel      Level
	Fallback      io.Writer        // receives the store's own failures; stderr when nil
	Now           func() time.Time // wall clock when nil
}

// Store appends formatted entries to <Dir>/<yyyy-MM-dd>-screenshot.log.
// All methods are safe for concurrent use.
type Store struct {
	dir       string
	retention int
	fallback  io.Writer
	now       func() time.Time

	mu       sync.Mutex
	minLevel Level
	file     *os.File
	date     string
}

// Open creates the log directory, opens today's file and prunes old ones.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("logstore: directory not set")
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.Fallback == nil {
		opts.Fallback = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logstore: create %s: %w", opts.Dir, err)
	}

	s := &Store{
		dir:       opts.Dir,
		retention: opts.RetentionDays,
		fallback:  opts.Fallback,
		now:       opts.Now,
		minLevel:  opts.MinLevel,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(s.now().Format(dateLayout))
	s.cleanupLocked()
	return s, nil
}

// Log appends one entry unless level is below the minimum.
func (s *Store) Log(level Level, function, message string) {
	s.write(s.now(), level, goroutineID(), function, message)
}

func (s *Store) write(at time.Time, level Level, gid uint64, function, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.minLevel {
		return
	}
	s.rotateLocked(at, false)
	if s.file == nil {
		s.openLocked(s.date)
		if s.file == nil {
			return
		}
	}

	line := formatEntry(at, level, gid, function, message)
	if _, err := s.file.WriteString(line); err != nil {
		s.failf("write log entry: %v", err)
		s.closeLocked()
		return
	}
	if err := s.file.Sync(); err != nil {
		s.failf("sync log file: %v", err)
	}
}

// ForceRotate reopens the file for the current date and prunes old files.
func (s *Store) ForceRotate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateLocked(s.now(), true)
}

// SetMinLevel changes the filter and records the change at Info.
func (s *Store) SetMinLevel(level Level) {
	s.mu.Lock()
	s.minLevel = level
	s.mu.Unlock()
	s.Log(LevelInfo, "logstore.SetMinLevel", "Minimum log level changed to: "+level.String())
}

// MinLevel returns the current filter.
func (s *Store) MinLevel() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLevel
}

// Path returns the file currently open for writing.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathFor(s.date)
}

// Dir returns the log directory.
func (s *Store) Dir() string { return s.dir }

// Close closes the open file. Later writes reopen it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Store) pathFor(date string) string {
	return filepath.Join(s.dir, date+fileSuffix)
}

func (s *Store) rotateLocked(at time.Time, force bool) {
	today := at.Format(dateLayout)
	if today == s.date && !force {
		return
	}
	s.closeLocked()
	s.openLocked(today)
	s.cleanupLocked()
}

// openLocked opens the file for date in append mode, writing the header
// when the file is new or empty.
func (s *Store) openLocked(date string) {
	s.date = date
	path := s.pathFor(date)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.failf("open log file %s: %v", path, err)
		return
	}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		if _, err := fmt.Fprintf(f, "--- Screenshot Module Log File: %s ---\n", date); err != nil {
			s.failf("write log header: %v", err)
		}
	}
	s.file = f
}

func (s *Store) closeLocked() {
	if s.file == nil {
		return
	}
	if err := s.file.Close(); err != nil {
		s.failf("close log file: %v", err)
	}
	s.file = nil
}

// cleanupLocked deletes *.log files whose name date is strictly before
// local midnight minus the retention window.
func (s *Store) cleanupLocked() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.failf("list log directory: %v", err)
		return
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cutoff := midnight.AddDate(0, 0, -s.retention)

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		date, ok := fileDate(e.Name(), now.Location())
		if !ok || !date.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.failf("delete old log file %s: %v", e.Name(), err)
		}
	}
}

func (s *Store) failf(format string, args ...any) {
	fmt.Fprintf(s.fallback, "logstore: "+format+"\n", args...)
}

// fileDate parses the leading yyyy-MM-dd of a log file name.
func fileDate(name string, loc *time.Location) (time.Time, bool) {
	if len(name) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, name[:len(dateLayout)], loc)
	return t, err == nil
}

func formatEntry(at time.Time, level Level, gid uint64, function, message string) string {
	var b strings.Builder
	b.Grow(96 + len(function) + len(message))
	b.WriteString("[UTC: ")
	b.WriteString(at.UTC().Format(time.RFC3339))
	b.WriteString("] [LOCAL: ")
	b.WriteString(at.Format(localLayout))
	b.WriteString("] [")
	b.WriteString(level.String())
	b.WriteString("] [Thread: ")
	b.WriteString(strconv.FormatUint(gid, 10))
	b.WriteString("] [")
	b.WriteString(function)
	b.WriteString("] ")
	b.WriteString(message)
	b.WriteByte('\n')
	return b.String()
}

// goroutineID reads the current goroutine's id from its stack header,
// "goroutine 17 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}
