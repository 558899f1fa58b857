package tree

import (
	"reflect"
	"testing"
	"time"

	"handbook/api/internal/content"
)

func strPtr(s string) *string { return &s }

func TestAssembleOrdersSiblingsByPosition(t *testing.T) {
	rows := []Row{
		{ID: "b", Title: "B", Position: 1},
		{ID: "a", Title: "A", Position: 0},
		{ID: "c", Title: "C", Position: 2},
		{ID: "b2", Title: "B2", ParentID: strPtr("b"), Position: 1},
		{ID: "b1", Title: "B1", ParentID: strPtr("b"), Position: 0},
	}

	sections, dropped := Assemble(rows)
	if dropped != 0 {
		t.Fatalf("expected no dropped rows, got %d", dropped)
	}
	gotRoots := []string{}
	for _, section := range sections {
		gotRoots = append(gotRoots, section.ID)
	}
	if !reflect.DeepEqual(gotRoots, []string{"a", "b", "c"}) {
		t.Fatalf("root order wrong: %v", gotRoots)
	}

	b := Find(sections, "b")
	if b == nil || len(b.Children) != 2 {
		t.Fatalf("children of b not attached: %+v", b)
	}
	if b.Children[0].ID != "b1" || b.Children[1].ID != "b2" {
		t.Fatalf("child order wrong: %s, %s", b.Children[0].ID, b.Children[1].ID)
	}
}

func TestAssembleStableForDuplicatePositions(t *testing.T) {
	rows := []Row{
		{ID: "x", Title: "X", Position: 3},
		{ID: "y", Title: "Y", Position: 3},
		{ID: "z", Title: "Z", Position: 3},
	}
	sections, _ := Assemble(rows)
	got := []string{sections[0].ID, sections[1].ID, sections[2].ID}
	if !reflect.DeepEqual(got, []string{"x", "y", "z"}) {
		t.Fatalf("duplicate positions should preserve input order, got %v", got)
	}
}

func TestAssembleOmitsInternalFields(t *testing.T) {
	added := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	rows := []Row{
		{
			ID: "leaf", Title: "Leaf", Summary: "about", AddedAt: added, UpdatedAt: added,
			Content: []content.Block{&content.Paragraph{Text: "hi"}},
		},
		{ID: "bare", Title: "Bare"},
	}
	sections, _ := Assemble(rows)

	leaf := Find(sections, "leaf")
	if leaf.AddedAt != "2024-03-15" || leaf.UpdatedAt != "2024-03-15" {
		t.Fatalf("dates not formatted: %q %q", leaf.AddedAt, leaf.UpdatedAt)
	}
	if len(leaf.Content) != 1 {
		t.Fatalf("content lost: %+v", leaf.Content)
	}

	bare := Find(sections, "bare")
	if bare.Content != nil || bare.Children != nil {
		t.Fatalf("empty content and children must stay nil: %+v", bare)
	}
	if bare.AddedAt != "" {
		t.Fatalf("zero time should format empty, got %q", bare.AddedAt)
	}
}

func TestAssembleDropsOrphans(t *testing.T) {
	rows := []Row{
		{ID: "root", Title: "Root"},
		{ID: "lost", Title: "Lost", ParentID: strPtr("missing")},
		{ID: "child-of-lost", Title: "CL", ParentID: strPtr("lost")},
	}
	sections, dropped := Assemble(rows)
	if dropped != 1 {
		t.Fatalf("expected 1 dropped row, got %d", dropped)
	}
	if len(sections) != 1 || sections[0].ID != "root" {
		t.Fatalf("unexpected roots: %+v", sections)
	}
	// The orphan's own child attached to the orphan, which never joined
	// the tree, so neither is reachable.
	if Find(sections, "child-of-lost") != nil {
		t.Fatal("orphan subtree leaked into the result")
	}
}

func TestFindMissing(t *testing.T) {
	sections, _ := Assemble([]Row{{ID: "a", Title: "A"}})
	if Find(sections, "nope") != nil {
		t.Fatal("expected nil for missing id")
	}
}

func TestDescendantsDepthFirst(t *testing.T) {
	edges := []Edge{
		{ID: "root", ParentID: nil},
		{ID: "a", ParentID: strPtr("root")},
		{ID: "b", ParentID: strPtr("root")},
		{ID: "a1", ParentID: strPtr("a")},
		{ID: "a2", ParentID: strPtr("a")},
		{ID: "other", ParentID: nil},
	}
	got := Descendants(edges, "root")
	if len(got) != 4 {
		t.Fatalf("expected 4 descendants, got %v", got)
	}
	seen := map[string]bool{}
	for _, id := range got {
		seen[id] = true
	}
	for _, want := range []string{"a", "b", "a1", "a2"} {
		if !seen[want] {
			t.Fatalf("missing descendant %s in %v", want, got)
		}
	}
	if seen["root"] || seen["other"] {
		t.Fatalf("unrelated ids included: %v", got)
	}
}

func TestDescendantsTerminatesOnCycle(t *testing.T) {
	// A malformed graph must not hang the walk.
	edges := []Edge{
		{ID: "a", ParentID: strPtr("b")},
		{ID: "b", ParentID: strPtr("a")},
	}
	got := Descendants(edges, "a")
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected just b, got %v", got)
	}
}

func TestDescendantsLeaf(t *testing.T) {
	edges := []Edge{{ID: "solo", ParentID: nil}}
	if got := Descendants(edges, "solo"); len(got) != 0 {
		t.Fatalf("leaf has no descendants, got %v", got)
	}
}

func TestFlattenReassignsPositions(t *testing.T) {
	rows := []Row{
		{ID: "a", Title: "A", Position: 10},
		{ID: "b", Title: "B", Position: 20},
		{ID: "b1", Title: "B1", ParentID: strPtr("b"), Position: 7},
		{ID: "b2", Title: "B2", ParentID: strPtr("b"), Position: 9},
	}
	sections, _ := Assemble(rows)
	flat := Flatten(sections)

	byID := map[string]FlatSection{}
	for _, row := range flat {
		byID[row.ID] = row
	}
	if byID["a"].Position != 0 || byID["b"].Position != 1 {
		t.Fatalf("root positions not reassigned: %+v", flat)
	}
	if byID["b1"].Position != 0 || byID["b2"].Position != 1 {
		t.Fatalf("child positions not reassigned: %+v", flat)
	}
	if byID["b1"].ParentID == nil || *byID["b1"].ParentID != "b" {
		t.Fatalf("parent lost in flattening: %+v", byID["b1"])
	}
}
