// Package watch turns local file events into debounced sync passes, with
// bounded retries, as an explicit state machine.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rjeczalik/notify"
)

const (
	DefaultDebounce      = 2 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 5 * time.Second

	eventBufferSize      = 64
	transitionBufferSize = 128
)

// SyncFunc runs one pass. A non-nil error schedules a retry.
type SyncFunc func(ctx context.Context) error

type Options struct {
	Debounce      time.Duration
	RetryAttempts int // retries after the first failure
	RetryBackoff  time.Duration
	OnTransition  func(Transition)
}

// Notifier debounces change notifications into calls to a SyncFunc:
//
//	idle -> debouncing -> syncing -> idle
//	                         |  ^
//	                         v  |
//	                       retrying -> idle (attempts exhausted)
//
// Notifications arriving while syncing or retrying are remembered and start a
// new debounce once the notifier is idle again.
type Notifier struct {
	root   string
	sync   SyncFunc
	opts   Options
	ignore *IgnoreList

	pending     chan string
	transitions chan Transition

	mu    sync.Mutex
	state State

	rawEvents chan notify.EventInfo
	wg        sync.WaitGroup
}

func NewNotifier(root string, fn SyncFunc, opts Options) *Notifier {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}

	ignore := NewIgnoreList(root)
	ignore.Load()

	return &Notifier{
		root:        root,
		sync:        fn,
		opts:        opts,
		ignore:      ignore,
		pending:     make(chan string, 1),
		transitions: make(chan Transition, transitionBufferSize),
	}
}

// Transitions publishes every state change. Slow readers miss transitions
// rather than stall the notifier.
func (n *Notifier) Transitions() <-chan Transition {
	return n.transitions
}

func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Notify reports a change to path, relative to the sync root. It returns
// false when the path is ignored.
func (n *Notifier) Notify(rel string) bool {
	if n.ignore.ShouldIgnore(rel) {
		return false
	}
	select {
	case n.pending <- rel:
	default:
		// a notification is already queued and they all mean the same thing
	}
	return true
}

// Start watches the sync root recursively and feeds events into Notify.
func (n *Notifier) Start(ctx context.Context) error {
	slog.Info("watch", "op", "start", "dir", n.root)

	n.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(n.root, "..."), n.rawEvents, notify.All); err != nil {
		return fmt.Errorf("watch %s: %w", n.root, err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-n.rawEvents:
				if !ok {
					return
				}
				rel, err := filepath.Rel(n.root, ev.Path())
				if err != nil {
					continue
				}
				if n.Notify(rel) {
					slog.Debug("watch", "event", ev.Event(), "path", rel)
				}
			}
		}
	}()
	return nil
}

// Stop ends the filesystem watch started by Start.
func (n *Notifier) Stop() {
	if n.rawEvents != nil {
		notify.Stop(n.rawEvents)
		close(n.rawEvents)
	}
	n.wg.Wait()
	slog.Info("watch", "op", "stop", "dir", n.root)
}

// Run drives the state machine until ctx is done. A sync in progress is
// waited for before Run returns.
func (n *Notifier) Run(ctx context.Context) error {
	var (
		timer   = time.NewTimer(time.Hour)
		dirty   bool
		retries int
		results = make(chan error, 1)
		retry   = n.newBackOff()
	)
	timer.Stop()
	defer timer.Stop()

	startSync := func() {
		n.transition(StateSyncing, nil)
		go func() { results <- n.sync(ctx) }()
	}

	for {
		select {
		case <-ctx.Done():
			if n.State() == StateSyncing {
				<-results
			}
			n.transition(StateIdle, nil)
			return ctx.Err()

		case <-n.pending:
			switch n.State() {
			case StateIdle, StateDebouncing:
				n.transition(StateDebouncing, nil)
				resetTimer(timer, n.opts.Debounce)
			default:
				dirty = true
			}

		case <-timer.C:
			switch n.State() {
			case StateDebouncing:
				dirty = false
				retries = 0
				retry.Reset()
				startSync()
			case StateRetrying:
				startSync()
			}

		case err := <-results:
			if err == nil {
				n.transition(StateIdle, nil)
			} else if retries < n.opts.RetryAttempts && !errors.Is(err, context.Canceled) {
				retries++
				wait := retry.NextBackOff()
				slog.Warn("watch", "op", "sync", "retry", retries, "wait", wait, "error", err)
				n.transition(StateRetrying, err)
				resetTimer(timer, wait)
				continue
			} else {
				slog.Error("watch", "op", "sync", "attempts", retries+1, "error", err)
				n.transition(StateIdle, err)
			}
			if dirty {
				dirty = false
				n.transition(StateDebouncing, nil)
				resetTimer(timer, n.opts.Debounce)
			}
		}
	}
}

func (n *Notifier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.opts.RetryBackoff
	b.MaxInterval = 16 * n.opts.RetryBackoff
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	return b
}

func (n *Notifier) transition(to State, err error) {
	n.mu.Lock()
	from := n.state
	if from == to {
		n.mu.Unlock()
		return
	}
	n.state = to
	n.mu.Unlock()

	t := Transition{From: from, To: to, At: time.Now(), Err: err}
	slog.Debug("watch", "from", from, "to", to)
	if n.opts.OnTransition != nil {
		n.opts.OnTransition(t)
	}
	select {
	case n.transitions <- t:
	default:
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
