package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/kotoba/internal/domain"
)

const cardColumns = `id, learner_id, deck_id, category_id, front, back, context, tags, content_hash, source_id, created_from,
	COALESCE(review_count, 0), COALESCE(correct_count, 0), mastery_level, last_reviewed_at, next_review_at,
	created_at, updated_at`

// CardFilter narrows ListCards.
type CardFilter struct {
	LearnerID  string
	DeckID     string
	CategoryID string
	Limit      int
	Offset     int
}

// CreateCard inserts a card, assigning its ID and timestamps. The caller is
// expected to have set Hash.
func (db *DB) CreateCard(ctx context.Context, card *domain.Card) error {
	return db.withinTx(ctx, func(tx *sql.Tx) error {
		if card.DeckID != "" {
			if _, err := db.getDeck(ctx, tx, `id = ?`, card.LearnerID, card.DeckID); err != nil {
				return err
			}
		}
		if card.CategoryID != "" {
			if _, err := db.getCategory(ctx, tx, card.LearnerID, card.CategoryID); err != nil {
				return err
			}
		}
		if err := db.insertCard(ctx, tx, card); err != nil {
			return err
		}
		return db.refreshDeckCounts(ctx, tx, card.DeckID)
	})
}

func (db *DB) insertCard(ctx context.Context, q queryer, card *domain.Card) error {
	now := db.now()
	card.ID = uuid.NewString()
	card.CreatedAt = now
	card.UpdatedAt = now
	if card.CreatedFrom == "" {
		card.CreatedFrom = domain.OriginManual
	}
	card.Tags = NormalizeTags(card.Tags)

	tags, err := json.Marshal(card.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = q.ExecContext(ctx, db.rebind(`
		INSERT INTO flashcards (
			id, learner_id, deck_id, category_id, front, back, context, tags, content_hash, source_id, created_from,
			review_count, correct_count, mastery_level, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)
	`),
		card.ID,
		card.LearnerID,
		nullString(card.DeckID),
		nullString(card.CategoryID),
		card.Front,
		card.Back,
		card.Context,
		string(tags),
		card.Hash,
		nullInt64(card.SourceID),
		string(card.CreatedFrom),
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return nil
}

// GetCard retrieves a learner's card by ID.
func (db *DB) GetCard(ctx context.Context, learnerID, cardID string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT `+cardColumns+`
		FROM flashcards WHERE id = ? AND learner_id = ?
	`), cardID, learnerID)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find card %s: %w", cardID, err)
	}
	return card, nil
}

// ListCards returns the learner's cards, newest first.
func (db *DB) ListCards(ctx context.Context, f CardFilter) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM flashcards WHERE learner_id = ?`
	args := []any{f.LearnerID}
	if f.DeckID != "" {
		query += ` AND deck_id = ?`
		args = append(args, f.DeckID)
	}
	if f.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, max(f.Offset, 0))

	return db.queryCards(ctx, db.rebind(query), args...)
}

// DueCards returns cards whose next review is at or before now, earliest first.
func (db *DB) DueCards(ctx context.Context, learnerID string, now time.Time, limit int) ([]domain.Card, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.queryCards(ctx, db.rebind(`
		SELECT `+cardColumns+`
		FROM flashcards
		WHERE learner_id = ? AND next_review_at IS NOT NULL AND next_review_at <= ?
		ORDER BY next_review_at, id
		LIMIT ?
	`), learnerID, now.UTC(), limit)
}

// CardStats counts the learner's cards, the ones due at now, and the
// mastered ones (top mastery level).
func (db *DB) CardStats(ctx context.Context, learnerID string, now time.Time, masteredLevel int) (domain.CardStats, error) {
	var s domain.CardStats
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN next_review_at IS NOT NULL AND next_review_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN mastery_level >= ? THEN 1 ELSE 0 END), 0)
		FROM flashcards WHERE learner_id = ?
	`), now.UTC(), masteredLevel, learnerID).Scan(&s.Total, &s.ReviewDue, &s.Mastered)
	if err != nil {
		return s, fmt.Errorf("failed to compute card stats: %w", err)
	}
	return s, nil
}

// DeleteCard removes one card. It returns ErrNotFound if the learner has no
// such card.
func (db *DB) DeleteCard(ctx context.Context, learnerID, cardID string) error {
	n, err := db.DeleteCards(ctx, learnerID, []string{cardID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCards removes the learner's cards with the given IDs and returns how
// many existed. Unknown IDs are skipped.
func (db *DB) DeleteCards(ctx context.Context, learnerID string, cardIDs []string) (int, error) {
	var deleted int
	err := db.withinTx(ctx, func(tx *sql.Tx) error {
		var decks []string
		for _, id := range cardIDs {
			var deckID sql.NullString
			err := tx.QueryRowContext(ctx, db.rebind(`
				SELECT deck_id FROM flashcards WHERE id = ? AND learner_id = ?
			`), id, learnerID).Scan(&deckID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to find card %s: %w", id, err)
			}

			if _, err := tx.ExecContext(ctx, db.rebind(`
				DELETE FROM flashcards WHERE id = ? AND learner_id = ?
			`), id, learnerID); err != nil {
				return fmt.Errorf("failed to delete card %s: %w", id, err)
			}
			deleted++
			decks = append(decks, deckID.String)
		}
		return db.refreshDeckCounts(ctx, tx, decks...)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*domain.Card, error) {
	var (
		c          domain.Card
		deckID     sql.NullString
		categoryID sql.NullString
		sourceID   sql.NullInt64
		tags       string
		origin     string
		lastReview sql.NullTime
		nextReview sql.NullTime
	)
	err := s.Scan(
		&c.ID,
		&c.LearnerID,
		&deckID,
		&categoryID,
		&c.Front,
		&c.Back,
		&c.Context,
		&tags,
		&c.Hash,
		&sourceID,
		&origin,
		&c.Review.ReviewCount,
		&c.Review.CorrectCount,
		&c.Review.MasteryLevel,
		&lastReview,
		&nextReview,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.DeckID = deckID.String
	c.CategoryID = categoryID.String
	c.SourceID = sourceID.Int64
	c.CreatedFrom = domain.CardOrigin(origin)
	c.Review.LastReviewedAt = timePtr(lastReview)
	c.Review.NextReviewAt = timePtr(nextReview)
	c.Tags = decodeTags(tags)
	return &c, nil
}
