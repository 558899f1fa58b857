package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"handbook/api/internal/content"
	"handbook/api/internal/tree"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// ListSections returns every section row with its content blocks resolved
// and ordered. Two queries, grouped in memory; the tree is small enough
// that a join buys nothing.
func (s *PostgresStore) ListSections(ctx context.Context) ([]SectionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(summary, ''), added_at, updated_at, parent_id, position
		FROM sections
		ORDER BY parent_id ASC NULLS FIRST, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]SectionRow, 0)
	index := make(map[string]int)
	for rows.Next() {
		var item SectionRow
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &item.AddedAt, &item.UpdatedAt, &item.ParentID, &item.Position); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}

	blockRows, err := s.db.QueryContext(ctx, `
		SELECT section_id, kind, payload
		FROM content_blocks
		ORDER BY section_id ASC, ord ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list content blocks: %w", err)
	}
	defer blockRows.Close()

	for blockRows.Next() {
		var sectionID, kind string
		var payload []byte
		if err := blockRows.Scan(&sectionID, &kind, &payload); err != nil {
			return nil, fmt.Errorf("scan content block: %w", err)
		}
		block, err := content.DecodeStored(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", sectionID, err)
		}
		if i, ok := index[sectionID]; ok {
			items[i].Content = append(items[i].Content, block)
		}
	}
	if err := blockRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content blocks: %w", err)
	}
	return items, nil
}

// GetSectionRow fetches a single row without content. Returns
// sql.ErrNoRows when the id does not exist.
func (s *PostgresStore) GetSectionRow(ctx context.Context, id string) (SectionRow, error) {
	var item SectionRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(summary, ''), added_at, updated_at, parent_id, position
		FROM sections
		WHERE id=$1
	`, id).Scan(&item.ID, &item.Title, &item.Summary, &item.AddedAt, &item.UpdatedAt, &item.ParentID, &item.Position)
	if err != nil {
		return SectionRow{}, err
	}
	return item, nil
}

func (s *PostgresStore) SectionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sections WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check section exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ChildCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections WHERE parent_id=$1`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ContentCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_blocks WHERE section_id=$1`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count content blocks: %w", err)
	}
	return count, nil
}

// ListEdges returns the (id, parentId) projection of every section, for
// descendant resolution.
func (s *PostgresStore) ListEdges(ctx context.Context) ([]tree.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_id FROM sections`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	edges := make([]tree.Edge, 0)
	for rows.Next() {
		var edge tree.Edge
		if err := rows.Scan(&edge.ID, &edge.ParentID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}

// CreateSection inserts a section row and its content blocks in one
// transaction. When position is nil the next sibling position is
// allocated inside the same transaction.
func (s *PostgresStore) CreateSection(ctx context.Context, row SectionRow, position *int, blocks []content.Block) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		pos := 0
		if position != nil {
			pos = *position
		} else {
			allocated, err := nextPosition(ctx, tx, row.ParentID)
			if err != nil {
				return err
			}
			pos = allocated
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, title, summary, added_at, updated_at, parent_id, position)
			VALUES ($1, $2, NULLIF($3, ''), NOW(), NOW(), $4, $5)
		`, row.ID, row.Title, row.Summary, row.ParentID, pos)
		if err != nil {
			return fmt.Errorf("insert section: %w", err)
		}

		return insertBlocks(ctx, tx, row.ID, blocks)
	})
}

// UpdateSection applies a partial update in one transaction: optional
// content replacement (full delete + insert, never a merge), optional
// in-transaction position allocation for a new parent, then the row
// update with a refreshed updated_at.
func (s *PostgresStore) UpdateSection(ctx context.Context, id string, upd SectionUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if upd.ReplaceContent {
			if _, err := tx.ExecContext(ctx, `DELETE FROM content_blocks WHERE section_id=$1`, id); err != nil {
				return fmt.Errorf("delete content blocks: %w", err)
			}
			if err := insertBlocks(ctx, tx, id, upd.Content); err != nil {
				return err
			}
		}

		position := upd.Position
		if position == nil && upd.AllocatePosition {
			allocated, err := nextPosition(ctx, tx, upd.ParentID)
			if err != nil {
				return err
			}
			position = &allocated
		}

		sets := []string{"updated_at = NOW()"}
		args := []any{id}
		next := 2
		if upd.Title != nil {
			sets = append(sets, fmt.Sprintf("title = $%d", next))
			args = append(args, *upd.Title)
			next++
		}
		if upd.Summary != nil {
			sets = append(sets, fmt.Sprintf("summary = NULLIF($%d, '')", next))
			args = append(args, *upd.Summary)
			next++
		}
		if upd.SetParent {
			sets = append(sets, fmt.Sprintf("parent_id = $%d", next))
			args = append(args, upd.ParentID)
			next++
		}
		if position != nil {
			sets = append(sets, fmt.Sprintf("position = $%d", next))
			args = append(args, *position)
			next++
		}

		query := fmt.Sprintf(`UPDATE sections SET %s WHERE id = $1`, strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update section: %w", err)
		}
		return nil
	})
}

// DeleteSections removes the given sections and their content blocks in
// one transaction. Callers pass the full closed set (target plus every
// descendant); the statements leave no orphaned content rows behind.
func (s *PostgresStore) DeleteSections(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_blocks WHERE section_id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("delete content blocks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("delete sections: %w", err)
		}
		return nil
	})
}

// ImportSection inserts a section with caller-supplied timestamps and an
// explicit position; used by the bulk import loader, which walks parents
// before children so the FK always resolves.
func (s *PostgresStore) ImportSection(ctx context.Context, row SectionRow, blocks []content.Block) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		addedAt := row.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now()
		}
		updatedAt := row.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = addedAt
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, title, summary, added_at, updated_at, parent_id, position)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		`, row.ID, row.Title, row.Summary, addedAt, updatedAt, row.ParentID, row.Position)
		if err != nil {
			return fmt.Errorf("import section: %w", err)
		}
		return insertBlocks(ctx, tx, row.ID, blocks)
	})
}

// DeleteAllSections wipes both tables; used by the bulk import loader.
func (s *PostgresStore) DeleteAllSections(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_blocks`); err != nil {
			return fmt.Errorf("delete all content blocks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sections`); err != nil {
			return fmt.Errorf("delete all sections: %w", err)
		}
		return nil
	})
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// nextPosition is the sibling position allocator: max(position)+1 within
// the parent's sibling set, 0 when there are no siblings. It runs against
// the write transaction so allocation and insert share one atomic unit.
func nextPosition(ctx context.Context, tx *sql.Tx, parentID *string) (int, error) {
	var position int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0)
		FROM sections
		WHERE parent_id IS NOT DISTINCT FROM $1
	`, parentID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("allocate position: %w", err)
	}
	return position, nil
}

func insertBlocks(ctx context.Context, tx *sql.Tx, sectionID string, blocks []content.Block) error {
	for ord, block := range blocks {
		payload, err := content.EncodePayload(block)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content_blocks (section_id, ord, kind, payload)
			VALUES ($1, $2, $3, $4::jsonb)
		`, sectionID, ord, block.Kind(), string(payload)); err != nil {
			return fmt.Errorf("insert content block: %w", err)
		}
	}
	return nil
}
