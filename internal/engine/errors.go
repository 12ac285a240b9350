package engine

import (
	"errors"
	"fmt"
)

var (
	ErrPassInProgress = errors.New("a sync pass is already running")
	ErrLocalMissing   = errors.New("local file missing")
	ErrParentMissing  = errors.New("parent document was not created")
	ErrUntracked      = errors.New("document is not tracked")
)

// Op names the per-document step an error or action belongs to.
type Op string

const (
	OpDetect   Op = "detect"
	OpPush     Op = "push"
	OpPull     Op = "pull"
	OpCreate   Op = "create"
	OpConflict Op = "conflict"
	OpResolve  Op = "resolve"
	OpSkip     Op = "skip"
)

// TransferError is a push, pull or create that still failed after all retries.
type TransferError struct {
	ID       string
	Op       Op
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Op, e.ID, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// DocError is a non-fatal failure of one document in a pass.
type DocError struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
	Op   Op     `json:"op"`
	Err  error  `json:"-"`
}

func (e *DocError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.ID, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *DocError) Unwrap() error { return e.Err }

// Message is the error text, for reports and history rows.
func (e *DocError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
