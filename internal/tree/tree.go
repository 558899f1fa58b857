// Package tree materializes the nested section tree from flat persisted
// rows and resolves transitive descendant sets. It is pure: all inputs
// arrive as slices, nothing here touches storage.
package tree

import (
	"sort"
	"time"

	"handbook/api/internal/content"
)

// Section is the external representation of a tree node. The sibling
// position is internal bookkeeping and never appears here; content is
// omitted when empty and children are omitted for leaves.
type Section struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary,omitempty"`
	AddedAt   string          `json:"addedAt,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
	Content   []content.Block `json:"content,omitempty"`
	Children  []*Section      `json:"children,omitempty"`
}

// Row is one flat persisted section row with its content already resolved
// and ordered.
type Row struct {
	ID        string
	Title     string
	Summary   string
	AddedAt   time.Time
	UpdatedAt time.Time
	ParentID  *string
	Position  int
	Content   []content.Block
}

type node struct {
	section  *Section
	position int
	children []*node
}

// Assemble converts flat rows into the nested, position-sorted tree.
// A row whose declared parent is missing from the row set is dropped
// rather than failing the whole read; the second return value counts the
// dropped rows so callers can surface the damage.
func Assemble(rows []Row) ([]*Section, int) {
	nodes := make(map[string]*node, len(rows))
	for _, row := range rows {
		section := &Section{
			ID:        row.ID,
			Title:     row.Title,
			Summary:   row.Summary,
			AddedAt:   formatDate(row.AddedAt),
			UpdatedAt: formatDate(row.UpdatedAt),
		}
		if len(row.Content) > 0 {
			section.Content = row.Content
		}
		nodes[row.ID] = &node{section: section, position: row.Position}
	}

	var roots []*node
	dropped := 0
	for _, row := range rows {
		current := nodes[row.ID]
		if row.ParentID == nil {
			roots = append(roots, current)
			continue
		}
		parent, ok := nodes[*row.ParentID]
		if !ok {
			dropped++
			continue
		}
		parent.children = append(parent.children, current)
	}

	sortSiblings(roots)
	// Worklist instead of recursion: depth is data, not stack.
	pending := append([]*node(nil), roots...)
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		sortSiblings(current.children)
		for _, child := range current.children {
			current.section.Children = append(current.section.Children, child.section)
			pending = append(pending, child)
		}
	}

	sections := make([]*Section, 0, len(roots))
	for _, root := range roots {
		sections = append(sections, root.section)
	}
	return sections, dropped
}

func sortSiblings(siblings []*node) {
	sort.SliceStable(siblings, func(i, j int) bool {
		return siblings[i].position < siblings[j].position
	})
}

// Find locates a section by id anywhere in the assembled tree.
func Find(sections []*Section, id string) *Section {
	for _, section := range sections {
		if section.ID == id {
			return section
		}
		if match := Find(section.Children, id); match != nil {
			return match
		}
	}
	return nil
}

// Edge is the (id, parentId) projection used for descendant resolution.
type Edge struct {
	ID       string
	ParentID *string
}

// Descendants returns every id transitively reachable as a child of the
// given id, in depth-first traversal order. The visited guard makes the
// walk terminate even when the stored graph is malformed.
func Descendants(edges []Edge, id string) []string {
	children := make(map[string][]string, len(edges))
	for _, edge := range edges {
		if edge.ParentID == nil {
			continue
		}
		children[*edge.ParentID] = append(children[*edge.ParentID], edge.ID)
	}

	seen := map[string]struct{}{id: {}}
	var found []string
	pending := []string{id}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		for _, child := range children[current] {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			found = append(found, child)
			pending = append(pending, child)
		}
	}
	return found
}

// FlatSection is the depth-first flattening of an assembled tree, with
// positions reassigned from sibling order.
type FlatSection struct {
	ID       string
	ParentID *string
	Position int
}

// Flatten emits the tree depth-first as flat rows.
func Flatten(sections []*Section) []FlatSection {
	var rows []FlatSection
	var walk func(parentID *string, siblings []*Section)
	walk = func(parentID *string, siblings []*Section) {
		for i, section := range siblings {
			rows = append(rows, FlatSection{ID: section.ID, ParentID: parentID, Position: i})
			id := section.ID
			walk(&id, section.Children)
		}
	}
	walk(nil, sections)
	return rows
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
