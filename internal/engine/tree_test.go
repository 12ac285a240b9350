package engine

import (
	"testing"

	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRemoteTree(h *harness) {
	h.remote.put(&docsdk.Document{ID: "R", ParentID: "HOME", Title: "Handbook", Version: 2, Content: "# Handbook\n"})
	h.remote.put(&docsdk.Document{ID: "X", ParentID: "R", Title: "Alpha", Version: 1, Content: "alpha\n"})
	h.remote.put(&docsdk.Document{ID: "Y", ParentID: "X", Title: "Deep", Version: 5, Content: "deep\n"})
	h.remote.put(&docsdk.Document{ID: "Z", ParentID: "R", Title: "Zeta", Version: 1, Content: "zeta\n"})
}

func TestPullTree(t *testing.T) {
	h := newHarness(t)
	seedRemoteTree(h)

	r, err := h.engine.PullTree(ctx, "R", TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 4, r.Created)
	assert.Equal(t, []string{"R", "X", "Y", "Z"}, r.RemoteOnly)

	paths := map[string]string{
		"R": "handbook/index.md",
		"X": "handbook/alpha/index.md",
		"Y": "handbook/alpha/deep.md",
		"Z": "handbook/zeta.md",
	}
	for id, p := range paths {
		doc := h.doc(id)
		assert.Equal(t, p, doc.LocalPath, id)
		assert.Equal(t, manifest.StatusSynced, doc.Status, id)
		assert.Equal(t, h.remote.doc(id).Version, doc.Version, id)
		assert.Equal(t, h.remote.doc(id).Content, h.readLocal(p), id)
	}
	assert.Equal(t, "X", h.doc("Y").ParentID)

	// root fetch, then one depth group at a time
	gets := h.remote.gets
	require.Len(t, gets, 5)
	assert.Equal(t, []string{"R", "R"}, gets[:2])
	assert.ElementsMatch(t, []string{"X", "Z"}, gets[2:4])
	assert.Equal(t, "Y", gets[4])

	again, err := h.engine.PullTree(ctx, "R", TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, []string{"R", "X", "Y", "Z"}, again.Unchanged)

	h.remote.edit("Z", "zeta v2\n")
	third, err := h.engine.PullTree(ctx, "R", TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Pulled)
	assert.Equal(t, "zeta v2\n", h.readLocal("handbook/zeta.md"))
	assert.Equal(t, int64(2), h.doc("Z").Version)
}

func TestPullTree_DryRun(t *testing.T) {
	h := newHarness(t)
	seedRemoteTree(h)

	r, err := h.engine.PullTree(ctx, "R", TreeOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, r.Actions, 4)
	assert.Equal(t, 0, r.Created)
	assert.Empty(t, h.store.GetAll())
}

func TestPullTree_MissingRoot(t *testing.T) {
	h := newHarness(t)

	r, err := h.engine.PullTree(ctx, "nope", TreeOptions{})
	assert.ErrorIs(t, err, docsdk.ErrDocumentNotFound)
	require.NotNil(t, r)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, StateFailed, h.engine.State())
}

func writeLocalTree(h *harness) {
	h.writeLocal("handbook/index.md", "# Handbook\n")
	h.writeLocal("handbook/intro.md", "# Intro\nhello\n")
	h.writeLocal("handbook/guide/index.md", "# Guide\n")
	h.writeLocal("handbook/guide/setup.md", "# Setup\nsteps\n")
}

func TestPushTree(t *testing.T) {
	h := newHarness(t)
	writeLocalTree(h)

	r, err := h.engine.PushTree(ctx, "handbook", TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 4, r.Created)

	created := h.remote.created
	require.Len(t, created, 4)
	assert.Equal(t, "Handbook", created[0].Title)
	assert.Empty(t, created[0].ParentID)
	assert.Equal(t, "SPACE", created[0].SpaceID)
	assert.ElementsMatch(t, []string{"Guide", "Intro"}, []string{created[1].Title, created[2].Title})
	assert.Equal(t, "new-1", created[1].ParentID)
	assert.Equal(t, "new-1", created[2].ParentID)

	guide, ok := h.store.FindByPath("handbook/guide/index.md")
	require.True(t, ok)
	assert.Equal(t, "Setup", created[3].Title)
	assert.Equal(t, guide.ID, created[3].ParentID)

	setup, ok := h.store.FindByPath("handbook/guide/setup.md")
	require.True(t, ok)
	assert.Equal(t, int64(1), setup.Version)
	assert.Equal(t, guide.ID, setup.ParentID)

	again, err := h.engine.PushTree(ctx, "handbook", TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Len(t, again.Unchanged, 4)
	assert.Len(t, h.remote.created, 4)
}

func TestPushTree_UnderParent(t *testing.T) {
	h := newHarness(t)
	h.writeLocal("notes/one.md", "one\n")

	r, err := h.engine.PushTree(ctx, "notes", TreeOptions{SpaceID: "OTHER", ParentID: "P"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Created)
	require.Len(t, h.remote.created, 1)
	assert.Equal(t, "one", h.remote.created[0].Title)
	assert.Equal(t, "P", h.remote.created[0].ParentID)
	assert.Equal(t, "OTHER", h.remote.created[0].SpaceID)
}

func TestPushTree_ParentFailureSkipsChildren(t *testing.T) {
	h := newHarness(t)
	writeLocalTree(h)
	h.remote.createErr["Handbook"] = &docsdk.APIError{Code: docsdk.CodeInvalidRequest, Message: "bad title", Status: 400}

	r, err := h.engine.PushTree(ctx, "handbook", TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 0, r.Created)
	assert.Empty(t, h.remote.created)

	require.Len(t, r.Errors, 4)
	for _, e := range r.Errors {
		if e.ID == "handbook/index.md" {
			var terr *TransferError
			require.ErrorAs(t, e, &terr)
			assert.Equal(t, 1, terr.Attempts)
			continue
		}
		assert.ErrorIs(t, e, ErrParentMissing, e.ID)
	}
}

func TestPushTree_DryRun(t *testing.T) {
	h := newHarness(t)
	writeLocalTree(h)

	r, err := h.engine.PushTree(ctx, "handbook", TreeOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, r.Actions, 4)
	assert.Empty(t, h.remote.created)
	assert.Empty(t, h.store.GetAll())
}

func TestPushTree_RequiresSpace(t *testing.T) {
	h := newHarness(t)
	opts := testOptions()
	opts.SpaceID = ""
	e, err := New(opts, h.store, h.remote, h.files, nil)
	require.NoError(t, err)

	_, err = e.PushTree(ctx, "handbook", TreeOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "space id", verr.Field)
}
