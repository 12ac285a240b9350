// Package manifest is the persisted ledger of tracked documents: for each remote
// document id, the baseline recorded at its last successful synchronization.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/docsync/internal/utils"
)

const (
	FileName     = "manifest.json"
	lockFileName = "manifest.lock"

	// MaxResolutionHistory bounds the resolution records kept per document.
	MaxResolutionHistory = 20
)

// Store caches the ledger in memory after Load. Every mutating call persists the
// whole ledger atomically before it returns.
type Store struct {
	dir  string
	path string

	mu   sync.RWMutex
	file *File
	docs map[string]*Document

	lock *flock.Flock
}

// NewStore returns a store for <dir>/manifest.json. Nothing is read until Load.
func NewStore(dir string) *Store {
	return &Store{
		dir:  dir,
		path: filepath.Join(dir, FileName),
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Exists() bool { return utils.FileExists(s.path) }

// Init creates and persists an empty manifest.
func (s *Store) Init(remoteBaseURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if utils.FileExists(s.path) {
		return newError(s.path, ErrAlreadyExists, nil)
	}

	file := &File{
		SchemaVersion: CurrentSchemaVersion,
		RemoteBaseURL: remoteBaseURL,
		Documents:     []*Document{},
	}
	docs := map[string]*Document{}
	if err := s.persist(file, docs); err != nil {
		return err
	}
	s.docs = docs
	slog.Info("manifest init", "path", s.path, "remote", remoteBaseURL)
	return nil
}

// Load reads the ledger from disk, running schema migrations when needed.
// Failures are *Error with Kind ErrNotFound or ErrCorrupt.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newError(s.path, ErrNotFound, nil)
	}
	if err != nil {
		return newError(s.path, ErrCorrupt, err)
	}

	file, err := decode(data)
	if err != nil {
		return newError(s.path, ErrCorrupt, err)
	}

	docs := make(map[string]*Document, len(file.Documents))
	for i, doc := range file.Documents {
		if err := validate(doc); err != nil {
			return newError(s.path, ErrCorrupt, fmt.Errorf("document %d: %w", i, err))
		}
		if _, dup := docs[doc.ID]; dup {
			return newError(s.path, ErrCorrupt, fmt.Errorf("duplicate document id %q", doc.ID))
		}
		docs[doc.ID] = doc
	}

	s.mu.Lock()
	s.file = file
	s.docs = docs
	s.mu.Unlock()

	slog.Debug("manifest load", "path", s.path, "documents", len(docs))
	return nil
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file != nil
}

// Get returns a copy of the tracked document.
func (s *Store) Get(id string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// GetAll returns copies of every tracked document ordered by id.
func (s *Store) GetAll() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedClones(s.docs)
}

// FindByPath returns the document mirrored at localPath, if any.
func (s *Store) FindByPath(localPath string) (*Document, bool) {
	localPath = utils.NormPath(localPath)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.LocalPath == localPath {
			return doc.Clone(), true
		}
	}
	return nil, false
}

func (s *Store) RemoteBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return ""
	}
	return s.file.RemoteBaseURL
}

func (s *Store) LastSyncTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil || s.file.LastSyncTime == nil {
		return nil
	}
	t := *s.file.LastSyncTime
	return &t
}

// Upsert inserts or replaces a document by id and persists the ledger.
// A document's version may never go backwards.
func (s *Store) Upsert(doc *Document) error {
	if err := validate(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrNotLoaded
	}

	if prev, ok := s.docs[doc.ID]; ok && doc.Version < prev.Version {
		return fmt.Errorf("%w: %s %d -> %d", ErrVersionRegression, doc.ID, prev.Version, doc.Version)
	}

	stored := doc.Clone()
	stored.LocalPath = utils.NormPath(stored.LocalPath)
	if n := len(stored.ResolutionHistory); n > MaxResolutionHistory {
		stored.ResolutionHistory = stored.ResolutionHistory[n-MaxResolutionHistory:]
	}

	next := make(map[string]*Document, len(s.docs)+1)
	for id, d := range s.docs {
		next[id] = d
	}
	next[stored.ID] = stored

	return s.commit(next, s.file.LastSyncTime)
}

// Remove deletes a document from the ledger. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrNotLoaded
	}
	if _, ok := s.docs[id]; !ok {
		return nil
	}

	next := make(map[string]*Document, len(s.docs))
	for docID, d := range s.docs {
		if docID != id {
			next[docID] = d
		}
	}
	return s.commit(next, s.file.LastSyncTime)
}

func (s *Store) SetLastSyncTime(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrNotLoaded
	}
	t = t.UTC()
	return s.commit(s.docs, &t)
}

// Lock takes an exclusive, non-blocking lock so only one pass runs against this
// manifest at a time. Release with Unlock.
func (s *Store) Lock() error {
	if err := utils.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// commit persists the next state and only then swaps it into the cache.
// Caller holds s.mu.
func (s *Store) commit(next map[string]*Document, lastSync *time.Time) error {
	file := &File{
		SchemaVersion: CurrentSchemaVersion,
		RemoteBaseURL: s.file.RemoteBaseURL,
		LastSyncTime:  lastSync,
	}
	if err := s.persist(file, next); err != nil {
		return err
	}
	s.docs = next
	return nil
}

// persist writes the ledger to a temp file in the same directory and renames it
// over manifest.json. Caller holds s.mu.
func (s *Store) persist(file *File, docs map[string]*Document) error {
	file.Documents = sortedClones(docs)

	data, err := jsonMarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	if err := utils.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace manifest: %w", err)
	}

	s.file = file
	return nil
}

func decode(data []byte) (*File, error) {
	var raw map[string]any
	if err := jsonUnmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw == nil {
		return nil, errors.New("empty manifest")
	}

	from, err := migrate(raw)
	if err != nil {
		return nil, err
	}

	if from != CurrentSchemaVersion {
		slog.Info("manifest migrated", "from", from, "to", CurrentSchemaVersion)
		if data, err = jsonMarshalIndent(raw, "", "  "); err != nil {
			return nil, fmt.Errorf("re-encode migrated manifest: %w", err)
		}
	}

	var file File
	if err := jsonUnmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if file.Documents == nil {
		file.Documents = []*Document{}
	}
	return &file, nil
}

func validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDocument)
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: %s has unknown status %q", ErrInvalidDocument, doc.ID, doc.Status)
	}
	if doc.Version < 0 {
		return fmt.Errorf("%w: %s has negative version", ErrInvalidDocument, doc.ID)
	}
	return nil
}

func sortedClones(docs map[string]*Document) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
