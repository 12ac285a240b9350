// Package engine runs synchronization passes: classify every tracked document,
// partition into push, pull and conflict work, and execute it on a bounded
// worker pool with per-document failure isolation. It also drives hierarchical
// bulk pulls and pushes in depth order.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/docsync/internal/changes"
	"github.com/openmined/docsync/internal/conflict"
	"github.com/openmined/docsync/internal/convert"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/hierarchy"
	"github.com/openmined/docsync/internal/manifest"
	"github.com/spf13/afero"
)

// Manifest is the tracking ledger. *manifest.Store satisfies it.
type Manifest interface {
	Loaded() bool
	Get(id string) (*manifest.Document, bool)
	GetAll() []*manifest.Document
	FindByPath(localPath string) (*manifest.Document, bool)
	Upsert(doc *manifest.Document) error
	SetLastSyncTime(t time.Time) error
}

// Remote is the document service. *docsdk.Client satisfies it.
type Remote interface {
	GetDocument(ctx context.Context, id string) (*docsdk.Document, error)
	UpdateDocument(ctx context.Context, params *docsdk.UpdateParams) (*docsdk.WriteResult, error)
	CreateDocument(ctx context.Context, params *docsdk.CreateParams) (*docsdk.WriteResult, error)
	ListChildren(ctx context.Context, id string) ([]*docsdk.Document, error)
}

// Files is the local side. *localfs.FS satisfies it.
type Files interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Hash(data []byte) string
	Backup(path string) (string, error)
	Abs(path string) (string, error)
	Root() string
	Afero() afero.Fs
}

type Engine struct {
	opts   Options
	store  Manifest
	remote Remote
	files  Files
	conv   convert.Converter

	detector *changes.Detector
	resolver *conflict.Resolver
	mapper   *hierarchy.Mapper

	// remote content in local format, keyed by id@version
	contents *lru.Cache[string, []byte]

	running sync.Mutex

	stateMu sync.RWMutex
	state   State
	onState func(from, to State)

	now func() time.Time
}

// New validates opts and wires the engine's collaborators. The manifest must
// already be loaded when a pass starts.
func New(opts Options, store Manifest, remote Remote, files Files, conv convert.Converter) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if conv == nil {
		conv = convert.Passthrough{}
	}

	contents, err := lru.New[string, []byte](remoteCacheSize)
	if err != nil {
		return nil, fmt.Errorf("content cache: %w", err)
	}

	return &Engine{
		opts:     opts,
		store:    store,
		remote:   remote,
		files:    files,
		conv:     conv,
		detector: changes.NewDetector(remote, files, conv),
		resolver: conflict.NewResolver(store, files),
		mapper:   hierarchy.NewMapper(),
		contents: contents,
		state:    StateIdle,
		now:      time.Now,
	}, nil
}

func (e *Engine) Options() Options { return e.opts }

// Resolver exposes the conflict resolver bound to this engine's manifest.
func (e *Engine) Resolver() *conflict.Resolver { return e.resolver }

// begin takes the single-pass lock and moves to Idle before the first phase.
func (e *Engine) begin() (func(), error) {
	if !e.running.TryLock() {
		return nil, ErrPassInProgress
	}
	if !e.store.Loaded() {
		e.running.Unlock()
		return nil, manifest.ErrNotLoaded
	}
	e.setState(StateIdle)
	return e.running.Unlock, nil
}

func (e *Engine) end(report *Report) {
	report.finish(e.now())
	if report.Status == StatusCompleted {
		e.setState(StateCompleted)
	} else {
		e.setState(StateFailed)
	}
}

func contentKey(id string, version int64) string {
	return id + "@" + strconv.FormatInt(version, 10)
}
