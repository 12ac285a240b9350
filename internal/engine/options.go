package engine

import (
	"fmt"
	"time"

	"github.com/openmined/docsync/internal/conflict"
)

const (
	DefaultConcurrency   = 5
	MaxConcurrency       = 64
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 500 * time.Millisecond
	remoteCacheSize      = 512
)

// Options configures an Engine. Use DefaultOptions and override fields.
type Options struct {
	Concurrency   int
	RetryAttempts int
	RetryBackoff  time.Duration
	Strategy      conflict.Strategy // applied to conflicts when a run does not name one
	SpaceID       string            // default space for PushTree
}

func DefaultOptions() Options {
	return Options{
		Concurrency:   DefaultConcurrency,
		RetryAttempts: DefaultRetryAttempts,
		RetryBackoff:  DefaultRetryBackoff,
		Strategy:      conflict.Manual,
	}
}

// ValidationError is malformed engine configuration, reported before any work.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (o Options) Validate() error {
	if o.Concurrency < 1 || o.Concurrency > MaxConcurrency {
		return &ValidationError{Field: "concurrency", Value: o.Concurrency, Reason: fmt.Sprintf("must be between 1 and %d", MaxConcurrency)}
	}
	if o.RetryAttempts < 1 {
		return &ValidationError{Field: "retry attempts", Value: o.RetryAttempts, Reason: "must be at least 1"}
	}
	if o.RetryBackoff <= 0 {
		return &ValidationError{Field: "retry backoff", Value: o.RetryBackoff, Reason: "must be positive"}
	}
	if !o.Strategy.Valid() {
		return &ValidationError{Field: "strategy", Value: o.Strategy, Reason: "unknown conflict strategy"}
	}
	return nil
}
