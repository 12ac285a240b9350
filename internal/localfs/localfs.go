// Package localfs is the local side of a sync: reads, atomic writes, content
// hashing and timestamped backups of files under the sync root.
package localfs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// MetaDir holds docsync's own state under the sync root.
	MetaDir = ".docsync"

	backupDir = MetaDir + "/backups"

	// backups are sorted lexicographically by this stamp
	backupTimeFormat = "20060102150405"
)

var ErrOutsideRoot = errors.New("localfs: path escapes sync root")

// FS is rooted at the sync directory; every path it takes is relative to that root
// and slash-separated, as stored in the manifest.
type FS struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// New wraps an afero filesystem. Tests pass afero.NewMemMapFs().
func New(fsys afero.Fs, root string) *FS {
	return &FS{fs: fsys, root: root, now: time.Now}
}

// NewOS returns an FS over the real filesystem rooted at root.
func NewOS(root string) *FS {
	return New(afero.NewOsFs(), root)
}

func (f *FS) Root() string { return f.root }

// Afero exposes the underlying filesystem for directory walks.
func (f *FS) Afero() afero.Fs { return f.fs }

// Abs maps a manifest-relative path to a path on the underlying filesystem.
func (f *FS) Abs(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return filepath.Join(f.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (f *FS) Exists(rel string) bool {
	abs, err := f.Abs(rel)
	if err != nil {
		return false
	}
	info, err := f.fs.Stat(abs)
	return err == nil && !info.IsDir()
}

// Read returns the file content. A missing file yields an error matching fs.ErrNotExist.
func (f *FS) Read(rel string) ([]byte, error) {
	abs, err := f.Abs(rel)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(f.fs, abs)
}

// Write replaces the file content atomically: the data lands in a temp file in the
// same directory which is then renamed over the target.
func (f *FS) Write(rel string, data []byte) error {
	abs, err := f.Abs(rel)
	if err != nil {
		return err
	}

	dir := filepath.Dir(abs)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(abs)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		f.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		f.fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := f.fs.Rename(tmpName, abs); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("rename %s to %s: %w", tmpName, abs, err)
	}
	return nil
}

// Hash returns the hex sha256 digest of data.
func (f *FS) Hash(data []byte) string {
	return Hash(data)
}

func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Backup copies the current file to .docsync/backups/<rel dir>/<name>.<timestamp><ext>
// and returns the backup's relative path. A missing file is not an error: there is
// nothing to lose, so the returned path is empty.
func (f *FS) Backup(rel string) (string, error) {
	data, err := f.Read(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read for backup: %w", err)
	}

	now := f.now()
	backupRel := f.backupPath(rel, now, 0)
	for i := 1; f.Exists(backupRel); i++ {
		// two backups of the same file within one second
		backupRel = f.backupPath(rel, now, i)
	}

	if err := f.Write(backupRel, data); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupRel, nil
}

// Backups lists existing backups of rel, oldest first.
func (f *FS) Backups(rel string) ([]string, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	dir := path.Join(backupDir, path.Dir(rel))
	absDir, err := f.Abs(dir)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(f.fs, absDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ext := path.Ext(rel)
	prefix := strings.TrimSuffix(path.Base(rel), ext) + "."
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		stamp := strings.TrimPrefix(e.Name(), prefix)
		if len(stamp) < len(backupTimeFormat) || !isDigits(stamp[:len(backupTimeFormat)]) {
			continue
		}
		out = append(out, path.Join(dir, e.Name()))
	}
	// ReadDir is sorted by name and names sort by timestamp
	return out, nil
}

func (f *FS) Remove(rel string) error {
	abs, err := f.Abs(rel)
	if err != nil {
		return err
	}
	if err := f.fs.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FS) backupPath(rel string, t time.Time, n int) string {
	rel = path.Clean(filepath.ToSlash(rel))
	ext := path.Ext(rel)
	base := strings.TrimSuffix(path.Base(rel), ext)
	stamp := t.Format(backupTimeFormat)
	if n > 0 {
		// padded so names keep sorting in creation order
		stamp = fmt.Sprintf("%s_%04d", stamp, n)
	}
	name := fmt.Sprintf("%s.%s%s", base, stamp, ext)
	return path.Join(backupDir, path.Dir(rel), name)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
