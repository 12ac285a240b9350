package engine

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Action is one thing a pass did, or would do in a dry run.
type Action struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Op     Op     `json:"op"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of a pass. Bucket slices hold document ids.
type Report struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Unchanged  []string `json:"unchanged"`
	LocalOnly  []string `json:"localOnly"`
	RemoteOnly []string `json:"remoteOnly"`
	Conflicted []string `json:"conflicted"`
	Suppressed []string `json:"suppressed"`

	Pushed   int `json:"pushed"`
	Pulled   int `json:"pulled"`
	Created  int `json:"created"`
	Resolved int `json:"resolved"`

	Actions []Action    `json:"actions"`
	Errors  []*DocError `json:"errors"`
	Status  Status      `json:"status"`

	mu sync.Mutex
}

const (
	KindSync     = "sync"
	KindPullTree = "pull-tree"
	KindPushTree = "push-tree"
)

func newReport(kind string, dryRun bool, now time.Time) *Report {
	return &Report{ID: uuid.NewString(), Kind: kind, DryRun: dryRun, StartedAt: now}
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Counts returns the size of each bucket keyed by bucket name.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		"unchanged":  len(r.Unchanged),
		"localOnly":  len(r.LocalOnly),
		"remoteOnly": len(r.RemoteOnly),
		"conflicted": len(r.Conflicted),
		"suppressed": len(r.Suppressed),
	}
}

func (r *Report) addError(e *DocError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, e)
}

func (r *Report) addAction(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Actions = append(r.Actions, a)
}

func (r *Report) update(fn func(r *Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// finish sorts everything for stable output and settles the status: a pass
// fails only on hard per-document errors, never on conflicts alone.
func (r *Report) finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range []*[]string{&r.Unchanged, &r.LocalOnly, &r.RemoteOnly, &r.Conflicted, &r.Suppressed} {
		slices.Sort(*b)
		*b = slices.Compact(*b)
	}
	slices.SortStableFunc(r.Actions, func(a, b Action) int {
		return strings.Compare(a.Path, b.Path)
	})
	slices.SortStableFunc(r.Errors, func(a, b *DocError) int {
		return strings.Compare(a.ID, b.ID)
	})

	r.FinishedAt = now
	r.Status = StatusCompleted
	if len(r.Errors) > 0 {
		r.Status = StatusFailed
	}
}
