package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/logstore"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidBackends lists the capture backends.
func ValidBackends() []string {
	return []string{"native", "command"}
}

// Validate returns all problems with c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		add("http.addr", c.HTTP.Addr, "must not be empty")
	}
	if strings.TrimSpace(c.GRPC.Addr) == "" {
		add("grpc.addr", c.GRPC.Addr, "must not be empty")
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		add("storage.root", c.Storage.Root, "must not be empty")
	}
	if strings.ContainsAny(c.Storage.Namespace, `/\`) {
		add("storage.namespace", c.Storage.Namespace, "must be a single path element")
	}

	if !slices.Contains(ValidBackends(), c.Capture.Backend) {
		add("capture.backend", c.Capture.Backend, "must be one of "+strings.Join(ValidBackends(), ", "))
	}
	if c.Capture.IntervalSeconds <= 0 {
		add("capture.interval_seconds", c.Capture.IntervalSeconds, "must be positive")
	}
	if f, err := imaging.ParseFormat(c.Capture.Format); err != nil || !f.IsSupported() {
		add("capture.format", c.Capture.Format, "must be png or jpeg")
	}
	if c.Capture.Quality < 0 || c.Capture.Quality > 1 {
		add("capture.quality", c.Capture.Quality, "must be between 0 and 1")
	}
	if c.Capture.MaxHashDistance < -1 || c.Capture.MaxHashDistance > 64 {
		add("capture.max_hash_distance", c.Capture.MaxHashDistance, "must be between -1 and 64")
	}

	if _, err := logstore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", c.Logging.Level, "must be debug, info, warning or error")
	}
	if c.Logging.RetentionDays < 1 {
		add("logging.retention_days", c.Logging.RetentionDays, "must be at least 1")
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			add("journal.batch_size", c.Journal.BatchSize, "must be at least 1")
		}
		if c.Journal.FlushDelayMs < 1 {
			add("journal.flush_delay_ms", c.Journal.FlushDelayMs, "must be at least 1")
		}
		if c.Journal.RetentionDays < 1 {
			add("journal.retention_days", c.Journal.RetentionDays, "must be at least 1")
		}
	}

	if c.Window.PollIntervalMs < 10 {
		add("window.poll_interval_ms", c.Window.PollIntervalMs, "must be at least 10")
	}
	return errs
}
