package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openmined/docsync/internal/conflict"
	"github.com/openmined/docsync/internal/convert"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/localfs"
	"github.com/openmined/docsync/internal/manifest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type harness struct {
	t      *testing.T
	store  *manifest.Store
	files  *localfs.FS
	remote *fakeRemote
	engine *Engine
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Concurrency = 4
	opts.RetryBackoff = time.Millisecond
	opts.SpaceID = "SPACE"
	return opts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := manifest.NewStore(filepath.Join(t.TempDir(), ".docsync"))
	require.NoError(t, store.Init("https://docs.example.com"))

	h := &harness{
		t:      t,
		store:  store,
		files:  localfs.New(afero.NewMemMapFs(), "/sync"),
		remote: newFakeRemote(),
	}
	e, err := New(testOptions(), store, h.remote, h.files, convert.Passthrough{})
	require.NoError(t, err)
	h.engine = e
	return h
}

// track sets up a document that is in sync on both sides.
func (h *harness) track(id, path, content string, version int64) {
	h.t.Helper()
	h.remote.put(&docsdk.Document{ID: id, Title: "Page " + id, Version: version, Content: content})
	require.NoError(h.t, h.files.Write(path, []byte(content)))
	require.NoError(h.t, h.store.Upsert(&manifest.Document{
		ID:          id,
		Title:       "Page " + id,
		Version:     version,
		ContentHash: localfs.Hash([]byte(content)),
		LocalPath:   path,
		Status:      manifest.StatusSynced,
	}))
}

func (h *harness) writeLocal(path, content string) {
	h.t.Helper()
	require.NoError(h.t, h.files.Write(path, []byte(content)))
}

func (h *harness) readLocal(path string) string {
	h.t.Helper()
	data, err := h.files.Read(path)
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) doc(id string) *manifest.Document {
	h.t.Helper()
	doc, ok := h.store.Get(id)
	require.True(h.t, ok, "document %s not tracked", id)
	return doc
}

func (h *harness) run(ro RunOptions) *Report {
	h.t.Helper()
	report, err := h.engine.Run(ctx, ro)
	require.NoError(h.t, err)
	return report
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Options)
		field string
	}{
		{"zero concurrency", func(o *Options) { o.Concurrency = 0 }, "concurrency"},
		{"too much concurrency", func(o *Options) { o.Concurrency = MaxConcurrency + 1 }, "concurrency"},
		{"no attempts", func(o *Options) { o.RetryAttempts = 0 }, "retry attempts"},
		{"no backoff", func(o *Options) { o.RetryBackoff = 0 }, "retry backoff"},
		{"bad strategy", func(o *Options) { o.Strategy = "mine" }, "strategy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mod(&opts)
			_, err := New(opts, manifest.NewStore(t.TempDir()), newFakeRemote(), localfs.New(afero.NewMemMapFs(), "/"), nil)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRun_RequiresLoadedManifest(t *testing.T) {
	e, err := New(DefaultOptions(), manifest.NewStore(t.TempDir()), newFakeRemote(), localfs.New(afero.NewMemMapFs(), "/"), nil)
	require.NoError(t, err)
	_, err = e.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, manifest.ErrNotLoaded)
}

func TestRun_Unchanged(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "H0 content\n", 3)

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.Unchanged)
	assert.Empty(t, r.LocalOnly)
	assert.Empty(t, r.Actions)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.NotNil(t, h.store.LastSyncTime())
}

func TestRun_LocalOnlyPush(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "H0 content\n", 3)
	h.writeLocal("space/p.md", "H1 content\n")

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.LocalOnly)
	assert.Equal(t, 1, r.Pushed)
	assert.Equal(t, StatusCompleted, r.Status)

	doc := h.doc("P")
	assert.Equal(t, int64(4), doc.Version)
	assert.Equal(t, localfs.Hash([]byte("H1 content\n")), doc.ContentHash)
	assert.Equal(t, manifest.StatusSynced, doc.Status)
	assert.Equal(t, "H1 content\n", h.remote.doc("P").Content)

	// round trip: nothing left to do
	updates := h.remote.totalUpdates()
	again := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, again.Unchanged)
	assert.Equal(t, 0, again.Pushed+again.Pulled)
	assert.Equal(t, updates, h.remote.totalUpdates())
}

func TestRun_RemoteOnlyPull(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "H0 content\n", 3)
	h.remote.edit("P", "H1 content\n")

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.RemoteOnly)
	assert.Equal(t, 1, r.Pulled)

	assert.Equal(t, "H1 content\n", h.readLocal("space/p.md"))
	backups, err := h.files.Backups("space/p.md")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "H0 content\n", h.readLocal(backups[0]))

	doc := h.doc("P")
	assert.Equal(t, int64(4), doc.Version)
	assert.Equal(t, localfs.Hash([]byte("H1 content\n")), doc.ContentHash)

	again := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, again.Unchanged)
	assert.Equal(t, 0, again.Pulled)
}

func TestRun_BothChangedManual(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")
	h.remote.edit("P", "theirs\n")

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.Conflicted)
	assert.Equal(t, StatusCompleted, r.Status, "conflicts alone do not fail a pass")
	assert.Equal(t, manifest.StatusConflicted, h.doc("P").Status)
	assert.Equal(t, "mine\n", h.readLocal("space/p.md"))

	out, err := h.engine.Resolve(ctx, "P", conflict.Manual)
	require.NoError(t, err)
	assert.Equal(t, "<<<<<<< local\nmine\n=======\ntheirs\n>>>>>>> remote (version 4)\n", h.readLocal("space/p.md"))
	assert.Equal(t, manifest.StatusConflicted, out.Document.Status)

	// conflicted documents are never pushed or pulled automatically
	updates := h.remote.totalUpdates()
	again := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, again.Conflicted)
	assert.Equal(t, updates, h.remote.totalUpdates())

	_, err = h.engine.Finalize(ctx, "P")
	assert.ErrorIs(t, err, conflict.ErrMarkersPresent)

	h.writeLocal("space/p.md", "merged\n")
	doc, err := h.engine.Finalize(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusModified, doc.Status)

	final := h.run(RunOptions{})
	assert.Equal(t, 1, final.Pushed)
	assert.Equal(t, "merged\n", h.remote.doc("P").Content)
	assert.Equal(t, int64(5), h.doc("P").Version)
	assert.Equal(t, manifest.StatusSynced, h.doc("P").Status)
}

func TestRun_RemoteEditDuringManualMerge(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")
	h.remote.edit("P", "theirs\n")
	h.run(RunOptions{})

	_, err := h.engine.Resolve(ctx, "P", conflict.Manual)
	require.NoError(t, err)
	require.Equal(t, int64(4), h.doc("P").ResolutionHistory[0].RemoteVersion)

	// someone edits the remote while the markers are being merged
	h.remote.edit("P", "someone else v5\n")
	h.writeLocal("space/p.md", "merged of mine and v4\n")
	doc, err := h.engine.Finalize(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(4), doc.Version, "baseline is the merged remote version")

	updates := h.remote.totalUpdates()
	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.Conflicted)
	assert.Empty(t, r.LocalOnly)
	assert.Equal(t, 0, r.Pushed)
	assert.Equal(t, updates, h.remote.totalUpdates())
	assert.Equal(t, "someone else v5\n", h.remote.doc("P").Content)
	assert.Equal(t, manifest.StatusConflicted, h.doc("P").Status)

	// a second merge against v5 goes through
	_, err = h.engine.Resolve(ctx, "P", conflict.Manual)
	require.NoError(t, err)
	assert.Equal(t, "<<<<<<< local\nmerged of mine and v4\n=======\nsomeone else v5\n>>>>>>> remote (version 5)\n", h.readLocal("space/p.md"))
	h.writeLocal("space/p.md", "merged of all\n")
	_, err = h.engine.Finalize(ctx, "P")
	require.NoError(t, err)

	final := h.run(RunOptions{})
	assert.Equal(t, 1, final.Pushed)
	assert.Equal(t, "merged of all\n", h.remote.doc("P").Content)
	assert.Equal(t, int64(6), h.doc("P").Version)
}

func TestRun_LocalWinsRefusesMarkers(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")
	h.remote.edit("P", "theirs\n")
	h.run(RunOptions{})

	_, err := h.engine.Resolve(ctx, "P", conflict.Manual)
	require.NoError(t, err)
	markers := h.readLocal("space/p.md")

	r := h.run(RunOptions{Strategy: conflict.LocalWins})
	assert.Equal(t, 0, r.Pushed)
	assert.Equal(t, StatusFailed, r.Status)
	require.Len(t, r.Errors, 1)
	assert.ErrorIs(t, r.Errors[0], conflict.ErrMarkersPresent)
	assert.Equal(t, "theirs\n", h.remote.doc("P").Content)
	assert.Equal(t, manifest.StatusConflicted, h.doc("P").Status)
	assert.Equal(t, markers, h.readLocal("space/p.md"))

	_, err = h.engine.Resolve(ctx, "P", conflict.LocalWins)
	assert.ErrorIs(t, err, conflict.ErrMarkersPresent)
	_, err = h.engine.Resolve(ctx, "P", conflict.Manual)
	assert.ErrorIs(t, err, conflict.ErrMarkersPresent, "markers are never nested")
}

func TestResolve_RequiresConflict(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)

	_, err := h.engine.Resolve(ctx, "P", conflict.Manual)
	require.ErrorIs(t, err, conflict.ErrNotConflicted)
	assert.Equal(t, "base\n", h.readLocal("space/p.md"))
	assert.Equal(t, manifest.StatusSynced, h.doc("P").Status)
	assert.Empty(t, h.doc("P").ResolutionHistory)

	h.writeLocal("space/p.md", "mine\n")
	_, err = h.engine.Resolve(ctx, "P", conflict.RemoteWins)
	assert.ErrorIs(t, err, conflict.ErrNotConflicted, "a local-only edit is pushed, not resolved")
	assert.Equal(t, "mine\n", h.readLocal("space/p.md"))
}

func TestRun_ConflictRemoteWins(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")
	h.remote.edit("P", "theirs\n")

	r := h.run(RunOptions{Strategy: conflict.RemoteWins})
	assert.Equal(t, []string{"P"}, r.Conflicted)
	assert.Equal(t, 1, r.Resolved)
	assert.Equal(t, "theirs\n", h.readLocal("space/p.md"))

	doc := h.doc("P")
	assert.Equal(t, manifest.StatusSynced, doc.Status)
	assert.Equal(t, int64(4), doc.Version)
	require.Len(t, doc.ResolutionHistory, 1)

	again := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, again.Unchanged)
}

func TestRun_ConflictLocalWins(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")
	h.remote.edit("P", "theirs\n")

	r := h.run(RunOptions{Strategy: conflict.LocalWins})
	assert.Equal(t, 1, r.Resolved)
	assert.Equal(t, 1, r.Pushed)
	assert.Equal(t, "mine\n", h.remote.doc("P").Content)
	assert.Equal(t, int64(5), h.remote.doc("P").Version)

	doc := h.doc("P")
	assert.Equal(t, manifest.StatusSynced, doc.Status)
	assert.Equal(t, int64(5), doc.Version)
	assert.Equal(t, localfs.Hash([]byte("mine\n")), doc.ContentHash)

	again := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, again.Unchanged)
}

func TestRun_LocalWinsPushFailureLeavesModified(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")
	h.remote.edit("P", "theirs\n")
	h.remote.updateErr["P"] = errors.New("connection reset")

	r := h.run(RunOptions{Strategy: conflict.LocalWins})
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, manifest.StatusModified, h.doc("P").Status)

	delete(h.remote.updateErr, "P")
	again := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, again.LocalOnly)
	assert.Equal(t, 1, again.Pushed)
	assert.Equal(t, "mine\n", h.remote.doc("P").Content)
}

func TestRun_VersionMismatchBecomesConflict(t *testing.T) {
	h := newHarness(t)
	h.track("P", "space/p.md", "base\n", 3)
	h.writeLocal("space/p.md", "mine\n")

	var once sync.Once
	h.remote.beforeUpdate = func(id string) {
		once.Do(func() { h.remote.edit(id, "sneaky remote edit\n") })
	}

	r := h.run(RunOptions{})
	assert.Empty(t, r.LocalOnly, "a rejected push leaves the local-only bucket")
	assert.Equal(t, []string{"P"}, r.Conflicted)
	assert.Equal(t, 0, r.Pushed)
	assert.Empty(t, r.Errors)
	assert.Equal(t, StatusCompleted, r.Status)

	assert.Equal(t, manifest.StatusConflicted, h.doc("P").Status)
	assert.Equal(t, "sneaky remote edit\n", h.remote.doc("P").Content)
	assert.Equal(t, 1, h.remote.updateCalls["P"], "version mismatches are not retried")
}

func TestRun_PartialFailures(t *testing.T) {
	h := newHarness(t)
	h.track("A", "a.md", "a\n", 1)
	h.track("B", "b.md", "b\n", 1)
	h.track("C", "c.md", "c\n", 1)
	for _, id := range []string{"a", "b", "c"} {
		h.writeLocal(id+".md", id+" edited\n")
	}
	h.remote.getErr["B"] = errors.New("connection reset")
	h.remote.updateErr["C"] = errors.New("service unavailable")

	r := h.run(RunOptions{})
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 1, r.Pushed)
	assert.Equal(t, []string{"A", "C"}, r.LocalOnly)
	require.Len(t, r.Errors, 2)

	assert.Equal(t, "B", r.Errors[0].ID)
	assert.Equal(t, OpDetect, r.Errors[0].Op)

	assert.Equal(t, "C", r.Errors[1].ID)
	var terr *TransferError
	require.ErrorAs(t, r.Errors[1], &terr)
	assert.Equal(t, 3, terr.Attempts)
	assert.Equal(t, 3, h.remote.updateCalls["C"])

	assert.Equal(t, int64(2), h.doc("A").Version)
	assert.Equal(t, int64(1), h.doc("C").Version)
	assert.Equal(t, manifest.StatusSynced, h.doc("C").Status)
}

func TestRun_LocalMissing(t *testing.T) {
	h := newHarness(t)
	h.track("P", "p.md", "x\n", 1)
	require.NoError(t, h.files.Remove("p.md"))

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.LocalOnly)
	require.Len(t, r.Errors, 1)
	assert.ErrorIs(t, r.Errors[0], ErrLocalMissing)
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t)
	h.track("A", "a.md", "a\n", 1)
	h.track("B", "b.md", "b\n", 1)
	h.track("C", "c.md", "c\n", 1)
	h.writeLocal("a.md", "a edited\n")
	h.remote.edit("B", "b remote\n")
	h.writeLocal("c.md", "c edited\n")
	h.remote.edit("C", "c remote\n")

	r := h.run(RunOptions{DryRun: true})
	assert.True(t, r.DryRun)
	assert.Equal(t, []string{"A"}, r.LocalOnly)
	assert.Equal(t, []string{"B"}, r.RemoteOnly)
	assert.Equal(t, []string{"C"}, r.Conflicted)
	require.Len(t, r.Actions, 3)
	assert.Equal(t, OpPush, r.Actions[0].Op)
	assert.Equal(t, OpPull, r.Actions[1].Op)
	assert.Equal(t, OpConflict, r.Actions[2].Op)
	assert.Equal(t, 0, r.Pushed+r.Pulled)

	assert.Equal(t, 0, h.remote.totalUpdates())
	assert.Equal(t, "b\n", h.readLocal("b.md"))
	assert.Equal(t, manifest.StatusSynced, h.doc("C").Status)
	assert.Nil(t, h.store.LastSyncTime())
}

func TestRun_Filter(t *testing.T) {
	h := newHarness(t)
	h.track("G", "guides/setup.md", "g\n", 1)
	h.track("N", "notes/todo.md", "n\n", 1)
	h.writeLocal("guides/setup.md", "g2\n")
	h.writeLocal("notes/todo.md", "n2\n")

	r := h.run(RunOptions{Filter: "guides/**"})
	assert.Equal(t, []string{"G"}, r.LocalOnly)
	assert.Equal(t, 1, r.Pushed)
	assert.Equal(t, int64(1), h.doc("N").Version)

	_, err := h.engine.Run(ctx, RunOptions{Filter: "[bad"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRun_Suppressed(t *testing.T) {
	h := newHarness(t)
	h.track("P", "p.md", "base\n", 3)
	doc := h.doc("P")
	doc.ResolutionHistory = []manifest.Resolution{{
		Strategy:           "manual",
		PreviousLocalHash:  localfs.Hash([]byte("mine\n")),
		PreviousRemoteHash: localfs.Hash([]byte("theirs\n")),
	}}
	require.NoError(t, h.store.Upsert(doc))
	h.writeLocal("p.md", "mine\n")
	h.remote.edit("P", "theirs\n")

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.Suppressed)
	assert.Empty(t, r.Conflicted)
	assert.Equal(t, manifest.StatusSynced, h.doc("P").Status)
}

func TestRun_ModifiedStatusIsPushed(t *testing.T) {
	h := newHarness(t)
	h.track("P", "p.md", "same\n", 2)
	doc := h.doc("P")
	doc.Status = manifest.StatusModified
	require.NoError(t, h.store.Upsert(doc))

	r := h.run(RunOptions{})
	assert.Equal(t, []string{"P"}, r.LocalOnly)
	assert.Equal(t, int64(3), h.doc("P").Version)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	h := newHarness(t)
	opts := testOptions()
	opts.Concurrency = 2
	e, err := New(opts, h.store, h.remote, h.files, nil)
	require.NoError(t, err)

	for i := range 10 {
		id := string(rune('a' + i))
		h.track(id, id+".md", "v1\n", 1)
		h.writeLocal(id+".md", "v2\n")
	}
	h.remote.updateDelay = 5 * time.Millisecond

	r, err := e.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, r.Pushed)
	assert.LessOrEqual(t, h.remote.maxInFlight, 2)
}

func TestRun_StateTransitions(t *testing.T) {
	h := newHarness(t)
	h.track("P", "p.md", "x\n", 1)

	var got []string
	h.engine.OnStateChange(func(from, to State) {
		got = append(got, from.String()+">"+to.String())
	})

	h.run(RunOptions{})
	assert.Equal(t, []string{
		"idle>classifying",
		"classifying>partitioning",
		"partitioning>executing",
		"executing>completed",
	}, got)
	assert.Equal(t, StateCompleted, h.engine.State())

	got = nil
	h.run(RunOptions{DryRun: true})
	assert.Equal(t, []string{
		"completed>idle",
		"idle>classifying",
		"classifying>partitioning",
		"partitioning>completed",
	}, got)
}

func TestRun_RejectsConcurrentPass(t *testing.T) {
	h := newHarness(t)
	h.track("P", "p.md", "x\n", 1)

	var nested error
	h.engine.OnStateChange(func(from, to State) {
		if to == StateClassifying {
			_, nested = h.engine.Run(ctx, RunOptions{})
		}
	})

	h.run(RunOptions{})
	assert.ErrorIs(t, nested, ErrPassInProgress)
}
