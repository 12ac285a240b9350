package changes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/manifest"
	"golang.org/x/sync/errgroup"
)

// RemoteReader fetches the current state of a remote document.
type RemoteReader interface {
	GetDocument(ctx context.Context, id string) (*docsdk.Document, error)
}

// LocalReader reads and hashes local files.
type LocalReader interface {
	Read(path string) ([]byte, error)
	Hash(data []byte) string
}

// ToLocal converts remote markup into the local plain-text format.
type ToLocal interface {
	ToLocal(remote string) string
}

// DetectionError means a document could not be classified in this pass.
// It never affects the classification of other documents.
type DetectionError struct {
	ID  string
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("change detection %s: %v", e.ID, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// Result is the classification of one document together with everything read
// to produce it, so later steps do not read or fetch again.
type Result struct {
	Doc   *manifest.Document
	State State

	Local        LocalState
	LocalContent []byte

	Remote        RemoteState
	RemoteDoc     *docsdk.Document
	RemoteContent []byte // remote content already converted to the local format
}

// Detector classifies tracked documents.
type Detector struct {
	remote RemoteReader
	local  LocalReader
	conv   ToLocal
}

func NewDetector(remote RemoteReader, local LocalReader, conv ToLocal) *Detector {
	return &Detector{remote: remote, local: local, conv: conv}
}

// Detect classifies a single document.
func (d *Detector) Detect(ctx context.Context, doc *manifest.Document) (*Result, error) {
	res := &Result{Doc: doc}

	content, err := d.local.Read(doc.LocalPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Local = LocalState{Exists: false}
	case err != nil:
		return nil, &DetectionError{ID: doc.ID, Err: fmt.Errorf("read local %s: %w", doc.LocalPath, err)}
	default:
		res.LocalContent = content
		res.Local = LocalState{Exists: true, Hash: d.local.Hash(content)}
	}

	remote, err := d.remote.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, &DetectionError{ID: doc.ID, Err: fmt.Errorf("fetch remote: %w", err)}
	}
	if remote.Version < doc.Version {
		slog.Warn("changes", "id", doc.ID, "reason", "remote version behind manifest", "remote", remote.Version, "manifest", doc.Version)
	}

	// both sides are hashed in the local representation
	res.RemoteDoc = remote
	res.RemoteContent = []byte(d.conv.ToLocal(remote.Content))
	res.Remote = RemoteState{Version: remote.Version, Hash: d.local.Hash(res.RemoteContent)}

	res.State = Classify(Baseline{Version: doc.Version, ContentHash: doc.ContentHash}, res.Local, res.Remote)
	return res, nil
}

// DetectAll classifies docs concurrently, at most limit at a time. Failures are
// collected per document; the returned results hold every document that could be
// classified, in input order.
func (d *Detector) DetectAll(ctx context.Context, docs []*manifest.Document, limit int) ([]*Result, []*DetectionError) {
	results := make([]*Result, len(docs))

	var (
		mu   sync.Mutex
		errs []*DetectionError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, doc := range docs {
		g.Go(func() error {
			res, err := d.Detect(gctx, doc)
			if err != nil {
				var derr *DetectionError
				if !errors.As(err, &derr) {
					derr = &DetectionError{ID: doc.ID, Err: err}
				}
				slog.Warn("changes", "id", doc.ID, "error", derr.Err)
				mu.Lock()
				errs = append(errs, derr)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errs
}
