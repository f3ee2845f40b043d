package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/kotoba/internal/domain"
)

const (
	DefaultCategoryColor = "#8b5cf6"
	DefaultCategoryIcon  = "📚"
)

const categoryColumns = `id, learner_id, name, color, icon, created_at, updated_at`

// CategoryPatch holds the fields UpdateCategory changes. Nil fields are kept.
type CategoryPatch struct {
	Name  *string
	Color *string
	Icon  *string
}

// CreateCategory inserts a category for the learner. An empty color or icon
// gets the default.
func (db *DB) CreateCategory(ctx context.Context, learnerID, name, color, icon string) (*domain.Category, error) {
	if color == "" {
		color = DefaultCategoryColor
	}
	if icon == "" {
		icon = DefaultCategoryIcon
	}

	now := db.now()
	c := &domain.Category{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		Name:      name,
		Color:     color,
		Icon:      icon,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), c.ID, c.LearnerID, c.Name, c.Color, c.Icon, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert category %q: %w", name, err)
	}
	return c, nil
}

// ListCategories returns the learner's categories ordered by name.
func (db *DB) ListCategories(ctx context.Context, learnerID string) ([]domain.Category, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT `+categoryColumns+`
		FROM categories WHERE learner_id = ?
		ORDER BY name
	`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// UpdateCategory applies patch to one of the learner's categories and
// returns the result.
func (db *DB) UpdateCategory(ctx context.Context, learnerID, categoryID string, patch CategoryPatch) (*domain.Category, error) {
	var updated *domain.Category
	err := db.withinTx(ctx, func(tx *sql.Tx) error {
		c, err := db.getCategory(ctx, tx, learnerID, categoryID)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			c.Name = *patch.Name
		}
		if patch.Color != nil {
			c.Color = *patch.Color
		}
		if patch.Icon != nil {
			c.Icon = *patch.Icon
		}
		c.UpdatedAt = db.now()

		if _, err := tx.ExecContext(ctx, db.rebind(`
			UPDATE categories SET name = ?, color = ?, icon = ?, updated_at = ?
			WHERE id = ? AND learner_id = ?
		`), c.Name, c.Color, c.Icon, c.UpdatedAt, c.ID, learnerID); err != nil {
			return fmt.Errorf("failed to update category %s: %w", categoryID, err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCategory removes a category. Its cards are kept and become
// uncategorised.
func (db *DB) DeleteCategory(ctx context.Context, learnerID, categoryID string) error {
	return db.withinTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, db.rebind(`
			UPDATE flashcards SET category_id = NULL WHERE category_id = ? AND learner_id = ?
		`), categoryID, learnerID); err != nil {
			return fmt.Errorf("failed to clear category %s: %w", categoryID, err)
		}

		res, err := tx.ExecContext(ctx, db.rebind(`
			DELETE FROM categories WHERE id = ? AND learner_id = ?
		`), categoryID, learnerID)
		if err != nil {
			return fmt.Errorf("failed to delete category %s: %w", categoryID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetCardCategory moves a card into a category. An empty categoryID removes
// the card from its category.
func (db *DB) SetCardCategory(ctx context.Context, learnerID, cardID, categoryID string) error {
	return db.withinTx(ctx, func(tx *sql.Tx) error {
		if categoryID != "" {
			if _, err := db.getCategory(ctx, tx, learnerID, categoryID); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, db.rebind(`
			UPDATE flashcards SET category_id = ?, updated_at = ?
			WHERE id = ? AND learner_id = ?
		`), nullString(categoryID), db.now(), cardID, learnerID)
		if err != nil {
			return fmt.Errorf("failed to set category of card %s: %w", cardID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (db *DB) getCategory(ctx context.Context, q queryer, learnerID, categoryID string) (*domain.Category, error) {
	row := q.QueryRowContext(ctx, db.rebind(`
		SELECT `+categoryColumns+`
		FROM categories WHERE id = ? AND learner_id = ?
	`), categoryID, learnerID)

	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find category %s: %w", categoryID, err)
	}
	return c, nil
}

func scanCategory(s scanner) (*domain.Category, error) {
	var c domain.Category
	if err := s.Scan(&c.ID, &c.LearnerID, &c.Name, &c.Color, &c.Icon, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
