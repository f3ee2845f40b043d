package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/conorfennell/kotoba/internal/domain"
)

// NormalizeTags trims tags and drops blanks and duplicates, keeping the
// first occurrence's position.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ListTags returns every tag on the learner's cards with the number of cards
// carrying it, ordered by name.
func (db *DB) ListTags(ctx context.Context, learnerID string) ([]domain.TagCount, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT tags FROM flashcards WHERE learner_id = ?
	`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan tags: %w", err)
		}
		for _, t := range decodeTags(raw) {
			counts[t]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.TagCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.TagCount{Name: name, Cards: n})
	}
	slices.SortFunc(out, func(a, b domain.TagCount) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// SetCardTags replaces a card's tags and returns the stored list.
func (db *DB) SetCardTags(ctx context.Context, learnerID, cardID string, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	err := db.withinTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, db.rebind(`
			SELECT tags FROM flashcards WHERE id = ? AND learner_id = ?`+db.forUpdate()),
			cardID, learnerID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find card %s: %w", cardID, err)
		}
		return db.writeTags(ctx, tx, cardID, tags)
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// RemoveTag strips tag from all of the learner's cards and returns how many
// cards carried it.
func (db *DB) RemoveTag(ctx context.Context, learnerID, tag string) (int, error) {
	var updated int
	err := db.withinTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, db.rebind(`
			SELECT id, tags FROM flashcards WHERE learner_id = ?`+db.forUpdate()), learnerID)
		if err != nil {
			return fmt.Errorf("failed to query tags: %w", err)
		}

		changed := make(map[string][]string)
		for rows.Next() {
			var id, raw string
			if err := rows.Scan(&id, &raw); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan tags: %w", err)
			}
			tags := decodeTags(raw)
			if i := slices.Index(tags, tag); i >= 0 {
				changed[id] = slices.Delete(tags, i, i+1)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for id, tags := range changed {
			if err := db.writeTags(ctx, tx, id, tags); err != nil {
				return err
			}
		}
		updated = len(changed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (db *DB) writeTags(ctx context.Context, q queryer, cardID string, tags []string) error {
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	if _, err := q.ExecContext(ctx, db.rebind(`
		UPDATE flashcards SET tags = ?, updated_at = ? WHERE id = ?
	`), string(encoded), db.now(), cardID); err != nil {
		return fmt.Errorf("failed to update tags of card %s: %w", cardID, err)
	}
	return nil
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}
