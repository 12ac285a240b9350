package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the manifest has never been initialized.
	ErrNotFound = errors.New("manifest not found")
	// ErrCorrupt means the manifest exists but cannot be read, decoded or validated.
	ErrCorrupt = errors.New("manifest corrupt")

	ErrNotLoaded         = errors.New("manifest not loaded")
	ErrAlreadyExists     = errors.New("manifest already exists")
	ErrLocked            = errors.New("manifest locked by another process")
	ErrVersionRegression = errors.New("document version cannot decrease")
	ErrInvalidDocument   = errors.New("invalid document")
)

// Error wraps every failure to load or persist the ledger. Kind is ErrNotFound or
// ErrCorrupt for load failures so callers can tell "needs init" from "needs repair".
type Error struct {
	Path  string
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Cause)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(path string, kind, cause error) *Error {
	return &Error{Path: path, Kind: kind, Cause: cause}
}
