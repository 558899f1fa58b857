package store

import (
	"time"

	"handbook/api/internal/content"
)

// SectionRow is one persisted section. ParentID is nil for root-level
// sections. Content is populated only by ListSections.
type SectionRow struct {
	ID        string
	Title     string
	Summary   string
	AddedAt   time.Time
	UpdatedAt time.Time
	ParentID  *string
	Position  int
	Content   []content.Block
}

// SectionUpdate describes a partial update. Nil pointer fields are left
// untouched. SetParent distinguishes "move to root" (SetParent with nil
// ParentID) from "parent unchanged". AllocatePosition asks the store to
// compute the next sibling position under the new parent inside the same
// transaction as the update; it is ignored when Position is explicit.
type SectionUpdate struct {
	Title            *string
	Summary          *string
	SetParent        bool
	ParentID         *string
	Position         *int
	AllocatePosition bool
	ReplaceContent   bool
	Content          []content.Block
}
