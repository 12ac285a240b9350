package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/docsync/internal/changes"
	"github.com/openmined/docsync/internal/conflict"
	"github.com/openmined/docsync/internal/manifest"
	"github.com/openmined/docsync/internal/utils"
)

// RunOptions tune a single pass.
type RunOptions struct {
	// DryRun classifies and partitions as usual but writes nothing, locally or remotely.
	DryRun bool
	// Filter is a doublestar glob matched against each document's local path.
	Filter string
	// Strategy overrides Options.Strategy for this pass.
	Strategy conflict.Strategy
}

// Run executes one synchronization pass. Per-document problems end up in the
// report; only setup problems (bad options, no manifest, a pass already
// running) are returned as errors.
func (e *Engine) Run(ctx context.Context, ro RunOptions) (*Report, error) {
	strategy := ro.Strategy
	if strategy == "" {
		strategy = e.opts.Strategy
	}
	if !strategy.Valid() {
		return nil, &ValidationError{Field: "strategy", Value: strategy, Reason: "unknown conflict strategy"}
	}
	if ro.Filter != "" && !doublestar.ValidatePattern(ro.Filter) {
		return nil, &ValidationError{Field: "filter", Value: ro.Filter, Reason: "invalid glob"}
	}

	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	report := newReport(KindSync, ro.DryRun, e.now())
	slog.Info("sync pass", "id", report.ID, "dryRun", ro.DryRun, "filter", ro.Filter, "strategy", strategy)

	e.setState(StateClassifying)
	docs := e.inScope(ro.Filter)
	results, failures := e.detector.DetectAll(ctx, docs, e.opts.Concurrency)
	for _, f := range failures {
		doc, _ := e.store.Get(f.ID)
		report.addError(&DocError{ID: f.ID, Path: pathOf(doc), Op: OpDetect, Err: f})
	}

	e.setState(StatePartitioning)
	jobs := e.partition(results, strategy, report)

	if ro.DryRun {
		e.end(report)
		e.logSummary(report)
		return report, nil
	}

	e.setState(StateExecuting)
	e.execute(ctx, jobs, report)

	if err := e.store.SetLastSyncTime(e.now()); err != nil {
		slog.Warn("sync pass", "id", report.ID, "error", fmt.Errorf("record last sync time: %w", err))
	}

	e.end(report)
	e.logSummary(report)
	return report, nil
}

func (e *Engine) inScope(filter string) []*manifest.Document {
	all := e.store.GetAll()
	if filter == "" {
		return all
	}
	out := make([]*manifest.Document, 0, len(all))
	for _, d := range all {
		if ok, _ := doublestar.Match(filter, d.LocalPath); ok {
			out = append(out, d)
		}
	}
	return out
}

// partition sorts classified documents into buckets and returns the work to do.
// Every intended action is recorded in the report, so a dry run stops here.
func (e *Engine) partition(results []*changes.Result, strategy conflict.Strategy, report *Report) []*job {
	var jobs []*job
	plan := func(res *changes.Result, op Op, detail string, j *job) {
		report.addAction(Action{ID: res.Doc.ID, Path: res.Doc.LocalPath, Op: op, Detail: detail})
		if j != nil {
			jobs = append(jobs, j)
		}
	}

	for _, res := range results {
		doc := res.Doc
		if res.RemoteContent != nil {
			e.contents.Add(contentKey(doc.ID, res.Remote.Version), res.RemoteContent)
		}

		state := effectiveState(res)
		switch {
		case doc.Status == manifest.StatusConflicted || state == changes.BothChanged:
			if doc.Status != manifest.StatusConflicted && e.resolver.IsPreviouslyResolved(doc.ID, res.Local.Hash, res.Remote.Hash) {
				report.Suppressed = append(report.Suppressed, doc.ID)
				continue
			}
			report.Conflicted = append(report.Conflicted, doc.ID)
			if strategy.Automatic() {
				plan(res, OpResolve, string(strategy), e.resolveJob(res, strategy, report))
			} else {
				plan(res, OpConflict, "needs resolution", e.conflictJob(res))
			}

		case state == changes.LocalOnly:
			report.LocalOnly = append(report.LocalOnly, doc.ID)
			plan(res, OpPush, fmt.Sprintf("version %d -> %d", res.Remote.Version, res.Remote.Version+1), e.pushJob(res, report))

		case state == changes.RemoteOnly:
			report.RemoteOnly = append(report.RemoteOnly, doc.ID)
			plan(res, OpPull, fmt.Sprintf("version %d -> %d", doc.Version, res.Remote.Version), e.pullJob(res, report))

		default:
			report.Unchanged = append(report.Unchanged, doc.ID)
		}
	}
	return jobs
}

// effectiveState folds the manifest status into the classification: a document
// left modified by an interrupted push still needs pushing even when its content
// matches the baseline, and conflicts if the remote moved meanwhile.
func effectiveState(res *changes.Result) changes.State {
	if res.Doc.Status != manifest.StatusModified {
		return res.State
	}
	switch res.State {
	case changes.Unchanged:
		return changes.LocalOnly
	case changes.RemoteOnly:
		return changes.BothChanged
	}
	return res.State
}

func (e *Engine) conflictJob(res *changes.Result) *job {
	doc := res.Doc
	return &job{
		id: doc.ID, path: doc.LocalPath, depth: utils.PathDepth(doc.LocalPath), op: OpConflict,
		run: func(ctx context.Context) error {
			slog.Warn("sync", "op", OpConflict, "id", doc.ID, "path", doc.LocalPath, "local", res.Local.Exists, "remoteVersion", res.Remote.Version)
			return e.markConflicted(doc)
		},
	}
}

func (e *Engine) resolveJob(res *changes.Result, strategy conflict.Strategy, report *Report) *job {
	doc := res.Doc
	return &job{
		id: doc.ID, path: doc.LocalPath, depth: utils.PathDepth(doc.LocalPath), op: OpResolve,
		run: func(ctx context.Context) error {
			_, err := e.resolve(ctx, res, strategy, report)
			return err
		},
	}
}

// resolve applies strategy to a classified document. local-wins pushes right
// away against the remote version it overrode; if that push cannot complete the
// document is left modified so the next pass retries it.
func (e *Engine) resolve(ctx context.Context, res *changes.Result, strategy conflict.Strategy, report *Report) (*conflict.Outcome, error) {
	in := conflict.Input{Remote: &res.RemoteContent, RemoteVersion: res.Remote.Version}
	if res.Local.Exists {
		in.Local = &res.LocalContent
	}

	outcome, err := e.resolver.Resolve(ctx, res.Doc.ID, strategy, in)
	if err != nil {
		return nil, err
	}
	report.update(func(r *Report) { r.Resolved++ })

	if strategy != conflict.LocalWins {
		return outcome, nil
	}

	conflicted, err := e.push(ctx, outcome.Document.Clone(), res.LocalContent, res.Remote.Version, report)
	if err != nil || conflicted {
		if err != nil {
			if serr := e.markModified(res.Doc.ID); serr != nil {
				slog.Error("sync", "op", OpResolve, "id", res.Doc.ID, "error", serr)
			}
		}
		return outcome, err
	}
	if doc, ok := e.store.Get(res.Doc.ID); ok {
		outcome.Document = doc
	}
	return outcome, nil
}

func (e *Engine) markModified(id string) error {
	doc, ok := e.store.Get(id)
	if !ok {
		return ErrUntracked
	}
	doc.Status = manifest.StatusModified
	return e.store.Upsert(doc)
}

// Resolve classifies one document and applies strategy to it, outside a pass.
func (e *Engine) Resolve(ctx context.Context, id string, strategy conflict.Strategy) (*conflict.Outcome, error) {
	if !strategy.Valid() {
		return nil, &conflict.Error{ID: id, Strategy: string(strategy)}
	}
	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	doc, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", id, ErrUntracked)
	}
	res, err := e.detector.Detect(ctx, doc)
	if err != nil {
		return nil, err
	}
	if doc.Status != manifest.StatusConflicted && effectiveState(res) != changes.BothChanged {
		return nil, fmt.Errorf("resolve %s: %w (%s)", id, conflict.ErrNotConflicted, res.State)
	}

	report := newReport(KindSync, false, e.now())
	outcome, err := e.resolve(ctx, res, strategy, report)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Finalize completes a manual resolution. The next pass pushes the merged file,
// or reports a new conflict if the remote moved after the markers were written.
func (e *Engine) Finalize(ctx context.Context, id string) (*manifest.Document, error) {
	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	return e.resolver.Finalize(ctx, id)
}

func (e *Engine) logSummary(r *Report) {
	slog.Info("sync pass done",
		"id", r.ID,
		"status", r.Status,
		"dryRun", r.DryRun,
		"unchanged", len(r.Unchanged),
		"localOnly", len(r.LocalOnly),
		"remoteOnly", len(r.RemoteOnly),
		"conflicted", len(r.Conflicted),
		"suppressed", len(r.Suppressed),
		"errors", len(r.Errors),
		"took", r.Duration().Round(time.Millisecond),
	)
}

func pathOf(doc *manifest.Document) string {
	if doc == nil {
		return ""
	}
	return doc.LocalPath
}
