// Package conflict settles documents changed on both sides and keeps the
// per-document resolution history used to avoid re-flagging the same divergence.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/docsync/internal/manifest"
)

// Store is the part of the manifest the resolver updates.
type Store interface {
	Get(id string) (*manifest.Document, bool)
	Upsert(doc *manifest.Document) error
}

// Files is the local file collaborator.
type Files interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Hash(data []byte) string
	Backup(path string) (string, error)
}

// Input carries both sides of a conflict. A nil side was not supplied.
// Remote is already in the local format.
type Input struct {
	Local         *[]byte
	Remote        *[]byte
	RemoteVersion int64
}

// Content is a convenience for filling Input.
func Content(b []byte) *[]byte {
	if b == nil {
		b = []byte{}
	}
	return &b
}

// Outcome is what a resolution did.
type Outcome struct {
	ID         string
	Strategy   Strategy
	BackupPath string
	Document   *manifest.Document // manifest entry after the resolution
}

type Resolver struct {
	store Store
	files Files
	now   func() time.Time
}

func NewResolver(store Store, files Files) *Resolver {
	return &Resolver{store: store, files: files, now: time.Now}
}

// Resolve applies strategy to the document. Preconditions are checked before
// anything is touched; every strategy backs up the local file first and appends
// a resolution record.
func (r *Resolver) Resolve(ctx context.Context, id string, strategy Strategy, in Input) (*Outcome, error) {
	if !strategy.Valid() {
		return nil, &Error{ID: id, Strategy: string(strategy)}
	}
	if missing := missingContent(strategy, in); missing != "" {
		return nil, &Error{ID: id, Strategy: string(strategy), Missing: missing}
	}
	// markers in the local file mean a manual resolution is still open; merging
	// or pushing that file would spread them
	if strategy != RemoteWins && in.Local != nil && HasMarkers(*in.Local) {
		return nil, fmt.Errorf("resolve %s: %w in local content", id, ErrMarkersPresent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, ok := r.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", id, manifest.ErrNotFound)
	}

	backup, err := r.files.Backup(doc.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: backup: %w", id, err)
	}

	now := r.now().UTC()
	record := manifest.Resolution{Timestamp: now, Strategy: string(strategy), RemoteVersion: in.RemoteVersion}
	if in.Local != nil {
		record.PreviousLocalHash = r.files.Hash(*in.Local)
	}
	if in.Remote != nil {
		record.PreviousRemoteHash = r.files.Hash(*in.Remote)
	}

	switch strategy {
	case Manual:
		if err := r.files.Write(doc.LocalPath, Merge(*in.Local, *in.Remote, in.RemoteVersion)); err != nil {
			return nil, fmt.Errorf("resolve %s: write markers: %w", id, err)
		}
		doc.Status = manifest.StatusConflicted
		doc.LastModified = now

	case LocalWins:
		// the remote version is taken as baseline so the next push asserts it
		doc.Status = manifest.StatusSynced
		doc.ContentHash = record.PreviousLocalHash
		doc.Version = max(doc.Version, in.RemoteVersion)

	case RemoteWins:
		if err := r.files.Write(doc.LocalPath, *in.Remote); err != nil {
			return nil, fmt.Errorf("resolve %s: write remote: %w", id, err)
		}
		doc.Status = manifest.StatusSynced
		doc.ContentHash = record.PreviousRemoteHash
		doc.Version = max(doc.Version, in.RemoteVersion)
		doc.LastModified = now
	}

	doc.ResolutionHistory = append(doc.ResolutionHistory, record)
	if err := r.store.Upsert(doc); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}

	slog.Info("conflict", "op", "resolve", "id", id, "strategy", strategy, "path", doc.LocalPath, "backup", backup)

	stored, _ := r.store.Get(id)
	return &Outcome{ID: id, Strategy: strategy, BackupPath: backup, Document: stored}, nil
}

// Finalize ends a manual resolution once the user has removed every marker. The
// document becomes modified against the remote version the markers were written
// from, so a remote edit made since then surfaces as a new conflict instead of
// being overwritten by the next push.
func (r *Resolver) Finalize(ctx context.Context, id string) (*manifest.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, ok := r.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("finalize %s: %w", id, manifest.ErrNotFound)
	}
	if doc.Status != manifest.StatusConflicted {
		return nil, fmt.Errorf("finalize %s: %w", id, ErrNotConflicted)
	}

	data, err := r.files.Read(doc.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("finalize %s: %w", id, err)
	}
	if HasMarkers(data) {
		return nil, fmt.Errorf("finalize %s: %w in %s", id, ErrMarkersPresent, doc.LocalPath)
	}

	doc.Status = manifest.StatusModified
	doc.Version = max(doc.Version, mergedVersion(doc))
	if err := r.store.Upsert(doc); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", id, err)
	}

	slog.Info("conflict", "op", "finalize", "id", id, "path", doc.LocalPath)
	stored, _ := r.store.Get(id)
	return stored, nil
}

// mergedVersion is the remote version of the latest manual resolution, or 0 when
// the conflict was never merged.
func mergedVersion(doc *manifest.Document) int64 {
	for i := len(doc.ResolutionHistory) - 1; i >= 0; i-- {
		if rec := doc.ResolutionHistory[i]; rec.Strategy == string(Manual) {
			return rec.RemoteVersion
		}
	}
	return 0
}

// IsPreviouslyResolved reports whether the exact (local, remote) hash pair has
// already been resolved for this document.
func (r *Resolver) IsPreviouslyResolved(id, localHash, remoteHash string) bool {
	doc, ok := r.store.Get(id)
	if !ok {
		return false
	}
	for _, rec := range doc.ResolutionHistory {
		if rec.PreviousLocalHash == localHash && rec.PreviousRemoteHash == remoteHash {
			return true
		}
	}
	return false
}

func missingContent(s Strategy, in Input) string {
	switch s {
	case Manual:
		if in.Local == nil {
			return "local"
		}
		if in.Remote == nil {
			return "remote"
		}
	case LocalWins:
		if in.Local == nil {
			return "local"
		}
	case RemoteWins:
		if in.Remote == nil {
			return "remote"
		}
	}
	return ""
}
