package hierarchy

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// LocalNode is a file found by ScanLocal.
type LocalNode struct {
	Path     string // relative to the scanned directory, slash separated
	Title    string
	Depth    int
	IsIndex  bool
	Parent   *LocalNode // the index document of the enclosing directory, nil for roots
	Children []*LocalNode
}

// ScanLocal walks dir for documents to create remotely. A directory holding an
// index file is an index document and the other documents in it are its children.
// Directories without one are transparent. Hidden entries are skipped.
// Titles come from the first "# " heading, falling back to the file or directory name.
func (m *Mapper) ScanLocal(fsys afero.Fs, dir string) ([]*LocalNode, error) {
	var roots []*LocalNode
	if err := m.scanDir(fsys, dir, "", nil, &roots); err != nil {
		return nil, err
	}
	return roots, nil
}

func (m *Mapper) scanDir(fsys afero.Fs, root, rel string, parent *LocalNode, roots *[]*LocalNode) error {
	entries, err := afero.ReadDir(fsys, filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("read dir %q: %w", rel, err)
	}

	attach := func(n, to *LocalNode) {
		if to == nil {
			*roots = append(*roots, n)
			return
		}
		n.Parent = to
		n.Depth = to.Depth + 1
		to.Children = append(to.Children, n)
	}

	owner := parent
	hasIndex := slices.ContainsFunc(entries, func(e fs.FileInfo) bool {
		return !e.IsDir() && e.Name() == m.IndexName
	})
	if hasIndex {
		idx, err := m.readNode(fsys, root, path.Join(rel, m.IndexName), true)
		if err != nil {
			return err
		}
		if idx.Title == "" {
			idx.Title = path.Base(rel)
			if rel == "" {
				idx.Title = filepath.Base(root)
			}
		}
		attach(idx, parent)
		owner = idx
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		child := path.Join(rel, name)
		if e.IsDir() {
			if err := m.scanDir(fsys, root, child, owner, roots); err != nil {
				return err
			}
			continue
		}
		if name == m.IndexName || path.Ext(name) != "."+m.Extension {
			continue
		}
		n, err := m.readNode(fsys, root, child, false)
		if err != nil {
			return err
		}
		if n.Title == "" {
			n.Title = strings.TrimSuffix(name, path.Ext(name))
		}
		attach(n, owner)
	}
	return nil
}

func (m *Mapper) readNode(fsys afero.Fs, root, rel string, index bool) (*LocalNode, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", rel, err)
	}
	return &LocalNode{Path: rel, Title: HeadingTitle(data), IsIndex: index}, nil
}

// HeadingTitle returns the text of the first level-one markdown heading, or "".
func HeadingTitle(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return ""
}

// FlattenLocal returns every scanned node, parents before children.
func FlattenLocal(roots []*LocalNode) []*LocalNode {
	var out []*LocalNode
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)
		queue = append(queue, n.Children...)
	}
	return out
}

// LocalDepthGroups orders scanned nodes like DepthGroups.
func LocalDepthGroups(roots []*LocalNode) [][]*LocalNode {
	return groupByDepth(FlattenLocal(roots), func(n *LocalNode) int { return n.Depth }, func(a, b *LocalNode) int {
		return bulkOrder(a.IsIndex, b.IsIndex, a.Title, b.Title, a.Path, b.Path)
	})
}
