package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"handbook/api/internal/content"
	"handbook/api/internal/store"
	"handbook/api/internal/tree"
)

// dataStore is the persistence surface the service needs; implemented by
// store.PostgresStore and by fakes in tests.
type dataStore interface {
	ListSections(context.Context) ([]store.SectionRow, error)
	GetSectionRow(context.Context, string) (store.SectionRow, error)
	SectionExists(context.Context, string) (bool, error)
	ChildCount(context.Context, string) (int, error)
	ContentCount(context.Context, string) (int, error)
	ListEdges(context.Context) ([]tree.Edge, error)
	CreateSection(context.Context, store.SectionRow, *int, []content.Block) error
	UpdateSection(context.Context, string, store.SectionUpdate) error
	DeleteSections(context.Context, []string) error
	Ping(ctx context.Context) error
}

// notifier receives the "tree changed" signal after every successful
// mutation; callers use it to invalidate externally cached renderings.
type notifier interface {
	TreeChanged(ctx context.Context, ids []string) error
}

type Service struct {
	store   dataStore
	notify  notifier
	log     *logrus.Logger
	title   string
	tagline string
}

func New(dataStore dataStore, notify notifier, log *logrus.Logger, title, tagline string) *Service {
	return &Service{
		store:   dataStore,
		notify:  notify,
		log:     log,
		title:   title,
		tagline: tagline,
	}
}

// CreateSectionInput mirrors the POST /sections body. Content arrives
// untyped and is validated block by block.
type CreateSectionInput struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Summary  string            `json:"summary"`
	ParentID *string           `json:"parentId"`
	Position *int              `json:"position"`
	Content  []json.RawMessage `json:"content"`
}

// NullableString distinguishes an absent JSON field from an explicit
// null: parentId null moves a section to the root, absent leaves the
// parent untouched.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.Value = &value
	return nil
}

// NullableBlocks distinguishes an absent content field from an explicit
// value: an array (including an empty one) replaces the section's
// content, absent leaves it untouched, and null is rejected.
type NullableBlocks struct {
	Set   bool
	Items []json.RawMessage
}

func (b *NullableBlocks) UnmarshalJSON(data []byte) error {
	b.Set = true
	if string(data) == "null" {
		b.Items = nil
		return nil
	}
	return json.Unmarshal(data, &b.Items)
}

// UpdateSectionInput mirrors the PATCH /sections/{id} body.
type UpdateSectionInput struct {
	Title    *string        `json:"title"`
	Summary  *string        `json:"summary"`
	ParentID NullableString `json:"parentId"`
	Position *int           `json:"position"`
	Content  NullableBlocks `json:"content"`
}

// WikiData is the assembled site payload served at GET /wiki.
type WikiData struct {
	Title    string          `json:"title"`
	Tagline  string          `json:"tagline,omitempty"`
	Sections []*tree.Section `json:"sections"`
}

// ListSections assembles the full nested tree from the flat rows.
func (s *Service) ListSections(ctx context.Context) ([]*tree.Section, error) {
	rows, err := s.store.ListSections(ctx)
	if err != nil {
		return nil, err
	}
	treeRows := make([]tree.Row, 0, len(rows))
	for _, row := range rows {
		treeRows = append(treeRows, tree.Row{
			ID:        row.ID,
			Title:     row.Title,
			Summary:   row.Summary,
			AddedAt:   row.AddedAt,
			UpdatedAt: row.UpdatedAt,
			ParentID:  row.ParentID,
			Position:  row.Position,
			Content:   row.Content,
		})
	}
	sections, dropped := tree.Assemble(treeRows)
	if dropped > 0 {
		s.log.WithField("dropped_rows", dropped).Warn("section rows with missing parents dropped from tree")
	}
	if sections == nil {
		sections = []*tree.Section{}
	}
	return sections, nil
}

// Wiki returns the site title and tagline together with the tree.
func (s *Service) Wiki(ctx context.Context) (WikiData, error) {
	sections, err := s.ListSections(ctx)
	if err != nil {
		return WikiData{}, err
	}
	return WikiData{Title: s.title, Tagline: s.tagline, Sections: sections}, nil
}

// GetSection returns one section as it appears in the assembled tree.
func (s *Service) GetSection(ctx context.Context, id string) (*tree.Section, error) {
	sections, err := s.ListSections(ctx)
	if err != nil {
		return nil, err
	}
	section := tree.Find(sections, id)
	if section == nil {
		return nil, notFound("Section not found.")
	}
	return section, nil
}

// CreateSection validates and persists a new section with its content.
func (s *Service) CreateSection(ctx context.Context, in CreateSectionInput) error {
	if in.ID == "" {
		return validationError("id", "is required")
	}
	if in.Title == "" {
		return validationError("title", "is required")
	}
	if in.Position != nil && *in.Position < 0 {
		return validationError("position", "must be a non-negative integer")
	}
	blocks, err := decodeContent(in.Content)
	if err != nil {
		return err
	}

	exists, err := s.store.SectionExists(ctx, in.ID)
	if err != nil {
		return err
	}
	if exists {
		return conflict("Section id already exists.")
	}

	if in.ParentID != nil {
		parentExists, err := s.store.SectionExists(ctx, *in.ParentID)
		if err != nil {
			return err
		}
		if !parentExists {
			return parentNotFound("Parent section not found.")
		}
		parentContent, err := s.store.ContentCount(ctx, *in.ParentID)
		if err != nil {
			return err
		}
		if parentContent > 0 {
			return invalidHierarchy("Cannot add a child under a section that has content.")
		}
	}

	row := store.SectionRow{
		ID:       in.ID,
		Title:    in.Title,
		Summary:  in.Summary,
		ParentID: in.ParentID,
	}
	if err := s.store.CreateSection(ctx, row, in.Position, blocks); err != nil {
		return err
	}
	s.treeChanged(ctx, []string{in.ID})
	return nil
}

// UpdateSection applies a partial update, enforcing leaf/content
// exclusivity and acyclic reparenting before any write happens.
func (s *Service) UpdateSection(ctx context.Context, id string, in UpdateSectionInput) error {
	current, err := s.store.GetSectionRow(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Section not found.")
		}
		return err
	}

	if in.Title != nil && *in.Title == "" {
		return validationError("title", "must be a non-empty string")
	}
	if in.Position != nil && *in.Position < 0 {
		return validationError("position", "must be a non-negative integer")
	}

	replaceContent := in.Content.Set
	var blocks []content.Block
	if replaceContent {
		if in.Content.Items == nil {
			return validationError("content", "must be an array of blocks")
		}
		blocks, err = decodeContent(in.Content.Items)
		if err != nil {
			return err
		}
		children, err := s.store.ChildCount(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return invalidHierarchy("Cannot set content on a non-leaf section. Remove or move its children first.")
		}
	}

	targetParent := current.ParentID
	if in.ParentID.Set {
		targetParent = in.ParentID.Value
	}

	if targetParent != nil {
		if *targetParent == id {
			return invalidHierarchy("Cannot move a section under itself.")
		}
		parentExists, err := s.store.SectionExists(ctx, *targetParent)
		if err != nil {
			return err
		}
		if !parentExists {
			return parentNotFound("New parent section not found.")
		}
		edges, err := s.store.ListEdges(ctx)
		if err != nil {
			return err
		}
		for _, descendant := range tree.Descendants(edges, id) {
			if descendant == *targetParent {
				return invalidHierarchy("Cannot move a section under its own descendant.")
			}
		}
		parentContent, err := s.store.ContentCount(ctx, *targetParent)
		if err != nil {
			return err
		}
		if parentContent > 0 {
			return invalidHierarchy("Cannot move a section under a section that has content.")
		}
	}

	parentChanged := !sameParent(targetParent, current.ParentID)
	upd := store.SectionUpdate{
		Title:            in.Title,
		Summary:          in.Summary,
		SetParent:        parentChanged,
		ParentID:         targetParent,
		Position:         in.Position,
		AllocatePosition: parentChanged && in.Position == nil,
		ReplaceContent:   replaceContent,
		Content:          blocks,
	}
	if err := s.store.UpdateSection(ctx, id, upd); err != nil {
		return err
	}
	s.treeChanged(ctx, []string{id})
	return nil
}

// DeleteSection removes the section and its whole descendant subtree in
// one atomic unit and returns every removed id, target first.
func (s *Service) DeleteSection(ctx context.Context, id string) ([]string, error) {
	exists, err := s.store.SectionExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("Section not found.")
	}

	edges, err := s.store.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	ids := append([]string{id}, tree.Descendants(edges, id)...)
	if err := s.store.DeleteSections(ctx, ids); err != nil {
		return nil, err
	}
	s.treeChanged(ctx, ids)
	return ids, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// treeChanged emits the invalidation signal. Failures are logged and
// swallowed: the mutation is already committed and the hook is advisory.
func (s *Service) treeChanged(ctx context.Context, ids []string) {
	if err := s.notify.TreeChanged(ctx, ids); err != nil {
		s.log.WithError(err).Warn("tree change notification failed")
	}
}

func decodeContent(raws []json.RawMessage) ([]content.Block, error) {
	blocks, err := content.DecodeBlocks(raws)
	if err != nil {
		var fieldErr *content.FieldError
		if errors.As(err, &fieldErr) {
			return nil, domainError(400, "VALIDATION_ERROR", fieldErr.Error(), map[string]string{fieldErr.Field: fieldErr.Message})
		}
		return nil, err
	}
	return blocks, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
