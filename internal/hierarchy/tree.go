// Package hierarchy maps the remote parent/child tree onto nested local
// directories and orders bulk work so parents always come before children.
package hierarchy

import (
	"cmp"
	"path"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	DefaultExtension = "md"
	DefaultIndexName = "index.md"

	idSuffixLen = 8
)

// Ref is the minimal view of a document needed to place it in the tree.
type Ref struct {
	ID       string
	ParentID string
	Title    string
}

// Node is a document placed in the tree.
type Node struct {
	ID        string
	ParentID  string // empty for roots, including cycle members and orphans
	Title     string
	Children  []*Node
	Depth     int
	LocalPath string
}

// IsIndex reports whether the node is materialized as a directory index.
func (n *Node) IsIndex() bool {
	return len(n.Children) > 0
}

// Mapper computes local paths. The zero value is not usable; use NewMapper.
type Mapper struct {
	Extension     string
	IndexName     string
	MaxNameLength int
}

func NewMapper() *Mapper {
	return &Mapper{
		Extension:     DefaultExtension,
		IndexName:     DefaultIndexName,
		MaxNameLength: DefaultMaxNameLength,
	}
}

// Sanitize applies SanitizeTitle with the mapper's length bound.
func (m *Mapper) Sanitize(title string) string {
	return sanitize(title, m.MaxNameLength)
}

// DetectCycles returns every id that lies on a parent cycle, self-parents included.
// Documents that merely descend from a cycle are not members.
func DetectCycles(refs []Ref) mapset.Set[string] {
	parents := make(map[string]string, len(refs))
	for _, r := range refs {
		if _, dup := parents[r.ID]; !dup {
			parents[r.ID] = r.ParentID
		}
	}

	cycles := mapset.NewThreadUnsafeSet[string]()
	for id := range parents {
		seen := map[string]struct{}{}
		for cur, ok := parents[id]; ok && cur != ""; cur, ok = parents[cur] {
			if cur == id {
				cycles.Add(id)
				break
			}
			if _, loop := seen[cur]; loop {
				break
			}
			seen[cur] = struct{}{}
		}
	}
	return cycles
}

// BuildTree builds a forest from refs. Documents whose parent is unknown, and
// members of a parent cycle, become roots. Siblings are ordered by title then
// id. Depths and local paths are filled in. The first ref wins on duplicate ids.
func (m *Mapper) BuildTree(refs []Ref) []*Node {
	cycles := DetectCycles(refs)

	nodes := make(map[string]*Node, len(refs))
	order := make([]*Node, 0, len(refs))
	for _, r := range refs {
		if _, dup := nodes[r.ID]; dup {
			continue
		}
		n := &Node{ID: r.ID, ParentID: r.ParentID, Title: r.Title}
		nodes[r.ID] = n
		order = append(order, n)
	}

	var roots []*Node
	for _, n := range order {
		parent, ok := nodes[n.ParentID]
		if !ok || cycles.Contains(n.ID) {
			n.ParentID = ""
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	m.place(roots, "", 0)
	return roots
}

func (m *Mapper) place(siblings []*Node, dir string, depth int) {
	slices.SortFunc(siblings, byTitle)

	names := m.siblingNames(siblings, depth > 0)
	for _, n := range siblings {
		n.Depth = depth
		name := names[n.ID]
		if n.IsIndex() {
			n.LocalPath = path.Join(dir, name, m.IndexName)
			m.place(n.Children, path.Join(dir, name), depth+1)
		} else {
			n.LocalPath = path.Join(dir, name+"."+m.Extension)
		}
	}
}

// siblingNames resolves name collisions among siblings: every sibling sharing a
// sanitized name except the lexicographically first id gets "-<id prefix>"
// appended. Under an index, a leaf named like the index file always gets it.
func (m *Mapper) siblingNames(siblings []*Node, underIndex bool) map[string]string {
	byName := make(map[string][]string, len(siblings))
	names := make(map[string]string, len(siblings))
	for _, n := range siblings {
		name := m.Sanitize(n.Title)
		names[n.ID] = name
		byName[name] = append(byName[name], n.ID)
	}

	indexStem := strings.TrimSuffix(m.IndexName, "."+m.Extension)
	for name, ids := range byName {
		slices.Sort(ids)
		for i, id := range ids {
			if i > 0 {
				names[id] = name + "-" + idPrefix(id)
			}
		}
	}
	if underIndex {
		for _, n := range siblings {
			if !n.IsIndex() && names[n.ID] == indexStem {
				names[n.ID] = indexStem + "-" + idPrefix(n.ID)
			}
		}
	}
	return names
}

func idPrefix(id string) string {
	if len(id) > idSuffixLen {
		return id[:idSuffixLen]
	}
	return id
}

// Flatten returns every node of the forest, parents before children.
func Flatten(roots []*Node) []*Node {
	var out []*Node
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)
		queue = append(queue, n.Children...)
	}
	return out
}

// DepthGroups groups the forest by depth, shallowest first. Within a group index
// documents come first, then titles alphabetically, then ids.
func DepthGroups(roots []*Node) [][]*Node {
	return groupByDepth(Flatten(roots), func(n *Node) int { return n.Depth }, func(a, b *Node) int {
		return bulkOrder(a.IsIndex(), b.IsIndex(), a.Title, b.Title, a.ID, b.ID)
	})
}

func groupByDepth[T any](items []T, depth func(T) int, order func(a, b T) int) [][]T {
	var groups [][]T
	for _, it := range items {
		d := depth(it)
		for len(groups) <= d {
			groups = append(groups, nil)
		}
		groups[d] = append(groups[d], it)
	}
	for _, g := range groups {
		slices.SortFunc(g, order)
	}
	return slices.DeleteFunc(groups, func(g []T) bool { return len(g) == 0 })
}

func bulkOrder(aIndex, bIndex bool, aTitle, bTitle, aKey, bKey string) int {
	if aIndex != bIndex {
		if aIndex {
			return -1
		}
		return 1
	}
	return cmp.Or(cmp.Compare(aTitle, bTitle), cmp.Compare(aKey, bKey))
}

func byTitle(a, b *Node) int {
	return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
}
