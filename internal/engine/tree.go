package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/openmined/docsync/internal/changes"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/hierarchy"
	"github.com/openmined/docsync/internal/manifest"
	"github.com/openmined/docsync/internal/utils"
)

// TreeOptions tune PullTree and PushTree.
type TreeOptions struct {
	DryRun bool
	// SpaceID for created documents, defaults to Options.SpaceID. PushTree only.
	SpaceID string
	// ParentID the pushed roots are created under. PushTree only.
	ParentID string
}

// PullTree mirrors the remote subtree under rootID into nested local
// directories. Untracked documents are created in the manifest on their first
// successful pull. Depth groups are processed strictly in order.
func (e *Engine) PullTree(ctx context.Context, rootID string, to TreeOptions) (*Report, error) {
	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	report := newReport(KindPullTree, to.DryRun, e.now())
	slog.Info("pull tree", "id", report.ID, "root", rootID, "dryRun", to.DryRun)

	e.setState(StateClassifying)
	docs, err := e.fetchSubtree(ctx, rootID, report)
	if err != nil {
		report.addError(&DocError{ID: rootID, Op: OpPull, Err: err})
		e.end(report)
		return report, err
	}

	e.setState(StatePartitioning)
	refs := make([]hierarchy.Ref, 0, len(docs))
	for _, d := range docs {
		parent := d.ParentID
		if d.ID == rootID {
			parent = ""
		}
		refs = append(refs, hierarchy.Ref{ID: d.ID, ParentID: parent, Title: d.Title})
	}
	if cycles := hierarchy.DetectCycles(refs); cycles.Cardinality() > 0 {
		slog.Warn("pull tree", "reason", "parent cycle", "ids", cycles.ToSlice())
	}
	groups := hierarchy.DepthGroups(e.mapper.BuildTree(refs))

	byID := make(map[string]*docsdk.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	// in a dry run only tracked documents have jobs, and those only classify
	e.setState(StateExecuting)
	for depth, group := range groups {
		jobs := make([]*job, 0, len(group))
		for _, node := range group {
			if j := e.pullNodeJob(node, byID[node.ID], to.DryRun, report); j != nil {
				jobs = append(jobs, j)
			}
		}
		// barrier: the whole group finishes before the next depth starts
		e.execute(ctx, jobs, report)
		slog.Debug("pull tree", "depth", depth, "documents", len(group))
	}

	e.end(report)
	e.logSummary(report)
	return report, nil
}

// fetchSubtree walks the remote tree breadth first. A child that cannot be
// listed is recorded and its own subtree skipped.
func (e *Engine) fetchSubtree(ctx context.Context, rootID string, report *Report) ([]*docsdk.Document, error) {
	var root *docsdk.Document
	err := e.withRetry(ctx, rootID, OpPull, func(ctx context.Context) error {
		var err error
		root, err = e.remote.GetDocument(ctx, rootID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch tree root %s: %w", rootID, err)
	}

	seen := map[string]bool{root.ID: true}
	out := []*docsdk.Document{root}
	for i := 0; i < len(out); i++ {
		parent := out[i]
		var children []*docsdk.Document
		err := e.withRetry(ctx, parent.ID, OpPull, func(ctx context.Context) error {
			var err error
			children, err = e.remote.ListChildren(ctx, parent.ID)
			return err
		})
		if err != nil {
			report.addError(&DocError{ID: parent.ID, Op: OpPull, Err: fmt.Errorf("list children: %w", err)})
			continue
		}
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			c.ParentID = parent.ID
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) pullNodeJob(node *hierarchy.Node, remote *docsdk.Document, dryRun bool, report *Report) *job {
	tracked, ok := e.store.Get(node.ID)
	if !ok {
		report.update(func(r *Report) {
			r.RemoteOnly = append(r.RemoteOnly, node.ID)
			r.Actions = append(r.Actions, Action{ID: node.ID, Path: node.LocalPath, Op: OpCreate, Detail: "new local document"})
		})
		if dryRun {
			return nil
		}
		return &job{
			id: node.ID, path: node.LocalPath, depth: node.Depth, op: OpPull,
			run: func(ctx context.Context) error {
				return e.pullNew(ctx, node, remote, report)
			},
		}
	}

	// tracked documents keep their path and go through normal classification
	return &job{
		id: node.ID, path: tracked.LocalPath, depth: node.Depth, op: OpDetect,
		run: func(ctx context.Context) error {
			res, err := e.detector.Detect(ctx, tracked)
			if err != nil {
				return err
			}
			e.contents.Add(contentKey(tracked.ID, res.Remote.Version), res.RemoteContent)
			return e.applyTracked(ctx, res, dryRun, report)
		},
	}
}

// applyTracked pulls a tracked document if only the remote moved. Anything
// else is reported and left for a regular sync pass.
func (e *Engine) applyTracked(ctx context.Context, res *changes.Result, dryRun bool, report *Report) error {
	doc := res.Doc
	state := effectiveState(res)
	if doc.Status == manifest.StatusConflicted {
		state = changes.BothChanged
	}

	switch state {
	case changes.RemoteOnly:
		report.update(func(r *Report) {
			r.RemoteOnly = append(r.RemoteOnly, doc.ID)
			r.Actions = append(r.Actions, Action{ID: doc.ID, Path: doc.LocalPath, Op: OpPull})
		})
		if dryRun {
			return nil
		}
		return e.pull(ctx, doc.Clone(), res.RemoteDoc, res.Remote.Version, report)
	case changes.LocalOnly:
		report.update(func(r *Report) {
			r.LocalOnly = append(r.LocalOnly, doc.ID)
			r.Actions = append(r.Actions, Action{ID: doc.ID, Path: doc.LocalPath, Op: OpSkip, Detail: "local changes, run sync"})
		})
	case changes.BothChanged:
		report.update(func(r *Report) {
			r.Conflicted = append(r.Conflicted, doc.ID)
			r.Actions = append(r.Actions, Action{ID: doc.ID, Path: doc.LocalPath, Op: OpConflict, Detail: "needs resolution"})
		})
		if dryRun {
			return nil
		}
		return e.markConflicted(doc)
	default:
		report.update(func(r *Report) { r.Unchanged = append(r.Unchanged, doc.ID) })
	}
	return nil
}

// pullNew materializes an untracked remote document and starts tracking it.
func (e *Engine) pullNew(ctx context.Context, node *hierarchy.Node, listed *docsdk.Document, report *Report) error {
	var remote *docsdk.Document
	err := e.withRetry(ctx, node.ID, OpPull, func(ctx context.Context) error {
		var err error
		remote, err = e.remote.GetDocument(ctx, node.ID)
		return err
	})
	if err != nil {
		return err
	}
	content := []byte(e.conv.ToLocal(remote.Content))

	if other, taken := e.store.FindByPath(node.LocalPath); taken && other.ID != node.ID {
		return fmt.Errorf("%s is already tracked as %s", node.LocalPath, other.ID)
	}

	doc := &manifest.Document{
		ID:        remote.ID,
		ParentID:  node.ParentID,
		Title:     remote.Title,
		LocalPath: node.LocalPath,
	}
	if listed != nil && doc.ParentID == "" {
		doc.ParentID = listed.ParentID
	}
	if err := e.writeLocal(doc, content); err != nil {
		return err
	}

	doc.Version = remote.Version
	doc.ContentHash = e.files.Hash(content)
	doc.Status = manifest.StatusSynced
	doc.LastModified = e.now().UTC()
	if err := e.store.Upsert(doc); err != nil {
		return err
	}

	slog.Info("sync", "op", OpCreate, "id", doc.ID, "path", doc.LocalPath, "version", doc.Version)
	report.update(func(r *Report) { r.Created++ })
	return nil
}

// PushTree creates every untracked document under dir remotely, one depth
// group at a time, so each child is created with the id just assigned to its
// directory's index document. Already tracked files are left to sync passes.
func (e *Engine) PushTree(ctx context.Context, dir string, to TreeOptions) (*Report, error) {
	spaceID := to.SpaceID
	if spaceID == "" {
		spaceID = e.opts.SpaceID
	}
	if spaceID == "" {
		return nil, &ValidationError{Field: "space id", Value: `""`, Reason: "required to create documents"}
	}

	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	report := newReport(KindPushTree, to.DryRun, e.now())
	slog.Info("push tree", "id", report.ID, "dir", dir, "space", spaceID, "parent", to.ParentID, "dryRun", to.DryRun)

	e.setState(StateClassifying)
	rel := utils.NormPath(dir)
	if rel == "." {
		rel = ""
	}
	absDir := e.files.Root()
	if rel != "" {
		if absDir, err = e.files.Abs(rel); err != nil {
			report.addError(&DocError{ID: rel, Path: rel, Op: OpCreate, Err: err})
			e.end(report)
			return report, err
		}
	}
	roots, err := e.mapper.ScanLocal(e.files.Afero(), absDir)
	if err != nil {
		report.addError(&DocError{ID: rel, Path: rel, Op: OpCreate, Err: err})
		e.end(report)
		return report, err
	}

	e.setState(StatePartitioning)
	groups := hierarchy.LocalDepthGroups(roots)

	var (
		idsMu sync.Mutex
		ids   = map[*hierarchy.LocalNode]string{}
	)
	parentOf := func(n *hierarchy.LocalNode) (string, bool) {
		if n.Parent == nil {
			return to.ParentID, true
		}
		idsMu.Lock()
		defer idsMu.Unlock()
		id, ok := ids[n.Parent]
		return id, ok
	}

	e.setState(StateExecuting)
	for _, group := range groups {
		var jobs []*job
		for _, node := range group {
			localPath := path.Join(rel, node.Path)
			if doc, ok := e.store.FindByPath(localPath); ok {
				idsMu.Lock()
				ids[node] = doc.ID
				idsMu.Unlock()
				report.update(func(r *Report) { r.Unchanged = append(r.Unchanged, doc.ID) })
				continue
			}

			report.addAction(Action{ID: node.Title, Path: localPath, Op: OpCreate, Detail: "new remote document"})
			if to.DryRun {
				continue
			}

			jobs = append(jobs, &job{
				id: localPath, path: localPath, depth: node.Depth, op: OpCreate,
				run: func(ctx context.Context) error {
					parentID, ok := parentOf(node)
					if !ok {
						return ErrParentMissing
					}
					id, err := e.pushNew(ctx, node, localPath, spaceID, parentID, report)
					if err != nil {
						return err
					}
					idsMu.Lock()
					ids[node] = id
					idsMu.Unlock()
					return nil
				},
			})
		}
		// barrier: parents in this group have ids before the next group starts
		e.execute(ctx, jobs, report)
	}

	e.end(report)
	e.logSummary(report)
	return report, nil
}

func (e *Engine) pushNew(ctx context.Context, node *hierarchy.LocalNode, localPath, spaceID, parentID string, report *Report) (string, error) {
	content, err := e.files.Read(localPath)
	if err != nil {
		return "", err
	}

	params := &docsdk.CreateParams{
		SpaceID:  spaceID,
		Title:    node.Title,
		Content:  e.conv.ToRemote(string(content)),
		ParentID: parentID,
	}
	var result *docsdk.WriteResult
	err = e.withRetry(ctx, localPath, OpCreate, func(ctx context.Context) error {
		var err error
		result, err = e.remote.CreateDocument(ctx, params)
		return err
	})
	if err != nil {
		return "", err
	}

	doc := &manifest.Document{
		ID:           result.ID,
		ParentID:     parentID,
		Title:        node.Title,
		Version:      result.Version,
		ContentHash:  e.files.Hash(content),
		LocalPath:    localPath,
		Status:       manifest.StatusSynced,
		LastModified: e.now().UTC(),
	}
	if err := e.store.Upsert(doc); err != nil {
		return result.ID, errors.Join(fmt.Errorf("created %s but could not track it", result.ID), err)
	}

	slog.Info("sync", "op", OpCreate, "id", doc.ID, "path", localPath, "parent", parentID, "version", doc.Version)
	report.update(func(r *Report) {
		r.Created++
		r.LocalOnly = append(r.LocalOnly, doc.ID)
	})
	return doc.ID, nil
}
