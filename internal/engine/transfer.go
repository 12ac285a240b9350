package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/changes"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/manifest"
	"github.com/openmined/docsync/internal/queue"
	"github.com/openmined/docsync/internal/utils"
)

// job is one unit of per-document work. Depth orders the queue so shallow
// paths go first; it has no bearing on correctness in a flat pass.
type job struct {
	id    string
	path  string
	depth int
	run   func(ctx context.Context) error
	op    Op
}

// execute runs jobs on at most Concurrency workers and records every failure in
// report. Once ctx is done, remaining jobs are recorded as failed without running;
// a job already started always runs to completion.
func (e *Engine) execute(ctx context.Context, jobs []*job, report *Report) {
	if len(jobs) == 0 {
		return
	}

	pending := queue.NewPriorityQueue[*job]()
	for _, j := range jobs {
		pending.Enqueue(j, j.depth)
	}

	workers := min(e.opts.Concurrency, len(jobs))
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for j, ok := pending.Dequeue(); ok; j, ok = pending.Dequeue() {
				if err := ctx.Err(); err != nil {
					report.addError(&DocError{ID: j.id, Path: j.path, Op: j.op, Err: err})
					continue
				}
				if err := j.run(context.WithoutCancel(ctx)); err != nil {
					slog.Error("sync", "op", j.op, "id", j.id, "path", j.path, "error", err)
					report.addError(&DocError{ID: j.id, Path: j.path, Op: j.op, Err: err})
				}
			}
		}()
	}
	wg.Wait()
}

// withRetry retries fn with exponential backoff while the failure is transient.
// Version mismatches and missing documents fail immediately.
func (e *Engine) withRetry(ctx context.Context, id string, op Op, fn func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.opts.RetryBackoff
	exp.MaxInterval = 16 * e.opts.RetryBackoff
	exp.MaxElapsedTime = 0

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err != nil && !docsdk.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.opts.RetryAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			slog.Warn("sync", "op", op, "id", id, "retry", attempts, "wait", wait, "error", err)
		})
	if err != nil {
		return &TransferError{ID: id, Op: op, Attempts: attempts, Err: err}
	}
	return nil
}

// push uploads content against expectedBase, the remote version the content was
// diffed against. A version mismatch marks the document conflicted instead of
// overwriting, and is reported through the returned bool.
func (e *Engine) push(ctx context.Context, doc *manifest.Document, content []byte, expectedBase int64, report *Report) (conflicted bool, err error) {
	params := &docsdk.UpdateParams{
		ID:              doc.ID,
		Title:           doc.Title,
		Content:         e.conv.ToRemote(string(content)),
		ExpectedVersion: expectedBase + 1,
	}

	var result *docsdk.WriteResult
	err = e.withRetry(ctx, doc.ID, OpPush, func(ctx context.Context) error {
		var err error
		result, err = e.remote.UpdateDocument(ctx, params)
		return err
	})
	if errors.Is(err, docsdk.ErrVersionMismatch) {
		slog.Warn("sync", "op", OpConflict, "id", doc.ID, "path", doc.LocalPath, "reason", "remote moved during push")
		if err := e.markConflicted(doc); err != nil {
			return false, err
		}
		report.update(func(r *Report) {
			// the document was planned as a push; it ends up in exactly one bucket
			r.LocalOnly = slices.DeleteFunc(r.LocalOnly, func(id string) bool { return id == doc.ID })
			if !slices.Contains(r.Conflicted, doc.ID) {
				r.Conflicted = append(r.Conflicted, doc.ID)
			}
			r.Actions = append(r.Actions, Action{ID: doc.ID, Path: doc.LocalPath, Op: OpConflict, Detail: "version mismatch on push"})
		})
		return true, nil
	}
	if err != nil {
		return false, err
	}

	doc.Version = result.Version
	doc.ContentHash = e.files.Hash(content)
	doc.Status = manifest.StatusSynced
	doc.LastModified = e.now().UTC()
	if err := e.store.Upsert(doc); err != nil {
		return false, err
	}

	slog.Info("sync", "op", OpPush, "id", doc.ID, "path", doc.LocalPath, "version", result.Version, "size", humanize.Bytes(uint64(len(content))))
	report.update(func(r *Report) { r.Pushed++ })
	return false, nil
}

func (e *Engine) pushJob(res *changes.Result, report *Report) *job {
	doc := res.Doc
	return &job{
		id: doc.ID, path: doc.LocalPath, depth: utils.PathDepth(doc.LocalPath), op: OpPush,
		run: func(ctx context.Context) error {
			if !res.Local.Exists {
				return ErrLocalMissing
			}
			_, err := e.push(ctx, doc.Clone(), res.LocalContent, res.Remote.Version, report)
			return err
		},
	}
}

// remoteContent returns the remote body in local format at exactly version,
// from the classification cache when possible.
func (e *Engine) remoteContent(ctx context.Context, id string, version int64) ([]byte, *docsdk.Document, error) {
	if data, ok := e.contents.Get(contentKey(id, version)); ok {
		return data, nil, nil
	}

	var remote *docsdk.Document
	err := e.withRetry(ctx, id, OpPull, func(ctx context.Context) error {
		var err error
		remote, err = e.remote.GetDocument(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	data := []byte(e.conv.ToLocal(remote.Content))
	e.contents.Add(contentKey(id, remote.Version), data)
	return data, remote, nil
}

// writeLocal backs up whatever is at doc.LocalPath and replaces it.
func (e *Engine) writeLocal(doc *manifest.Document, content []byte) error {
	backup, err := e.files.Backup(doc.LocalPath)
	if err != nil {
		return err
	}
	if err := e.files.Write(doc.LocalPath, content); err != nil {
		return err
	}
	if backup != "" {
		slog.Debug("sync", "op", "backup", "path", doc.LocalPath, "backup", backup)
	}
	return nil
}

func (e *Engine) pull(ctx context.Context, doc *manifest.Document, remote *docsdk.Document, version int64, report *Report) error {
	content, fetched, err := e.remoteContent(ctx, doc.ID, version)
	if err != nil {
		return err
	}
	if fetched != nil {
		remote, version = fetched, fetched.Version
	}

	if err := e.writeLocal(doc, content); err != nil {
		return err
	}

	if remote != nil {
		doc.Title = remote.Title
		doc.ParentID = remote.ParentID
	}
	doc.Version = version
	doc.ContentHash = e.files.Hash(content)
	doc.Status = manifest.StatusSynced
	doc.LastModified = e.now().UTC()
	if err := e.store.Upsert(doc); err != nil {
		return err
	}

	slog.Info("sync", "op", OpPull, "id", doc.ID, "path", doc.LocalPath, "version", version, "size", humanize.Bytes(uint64(len(content))))
	report.update(func(r *Report) { r.Pulled++ })
	return nil
}

func (e *Engine) pullJob(res *changes.Result, report *Report) *job {
	doc := res.Doc
	return &job{
		id: doc.ID, path: doc.LocalPath, depth: utils.PathDepth(doc.LocalPath), op: OpPull,
		run: func(ctx context.Context) error {
			return e.pull(ctx, doc.Clone(), res.RemoteDoc, res.Remote.Version, report)
		},
	}
}

func (e *Engine) markConflicted(doc *manifest.Document) error {
	current, ok := e.store.Get(doc.ID)
	if !ok {
		return ErrUntracked
	}
	if current.Status == manifest.StatusConflicted {
		return nil
	}
	current.Status = manifest.StatusConflicted
	return e.store.Upsert(current)
}
