package conflict

import (
	"errors"
	"fmt"
)

var (
	ErrNotConflicted  = errors.New("document is not conflicted")
	ErrMarkersPresent = errors.New("conflict markers still present")
)

// Error reports unmet resolution preconditions: an unknown strategy, or a
// strategy called without the content it needs.
type Error struct {
	ID       string
	Strategy string
	Missing  string // "local" or "remote" when content was not supplied
}

func (e *Error) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("resolve %s: strategy %q requires %s content", e.ID, e.Strategy, e.Missing)
	}
	return fmt.Sprintf("resolve %s: unknown strategy %q", e.ID, e.Strategy)
}
