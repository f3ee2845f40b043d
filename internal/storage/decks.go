package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/kotoba/internal/domain"
)

// CreateDeck inserts a new deck for the learner and returns it with its ID set.
func (db *DB) CreateDeck(ctx context.Context, learnerID, name, description string) (*domain.Deck, error) {
	now := db.now()
	deck := &domain.Deck{
		ID:          uuid.NewString(),
		LearnerID:   learnerID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO decks (id, learner_id, name, description, card_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`), deck.ID, deck.LearnerID, deck.Name, deck.Description, deck.CreatedAt, deck.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert deck %q: %w", name, err)
	}
	return deck, nil
}

// ListDecks returns the learner's decks, newest first.
func (db *DB) ListDecks(ctx context.Context, learnerID string) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, learner_id, name, description, card_count, created_at, updated_at
		FROM decks WHERE learner_id = ?
		ORDER BY created_at DESC
	`), learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.LearnerID, &d.Name, &d.Description, &d.CardCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// GetDeck retrieves a deck by ID.
func (db *DB) GetDeck(ctx context.Context, learnerID, deckID string) (*domain.Deck, error) {
	return db.getDeck(ctx, db.conn, `id = ?`, learnerID, deckID)
}

// EnsureDeck returns the learner's deck called name, creating it if needed.
func (db *DB) EnsureDeck(ctx context.Context, learnerID, name string) (*domain.Deck, error) {
	d, err := db.getDeck(ctx, db.conn, `name = ?`, learnerID, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return db.CreateDeck(ctx, learnerID, name, "")
}

func (db *DB) getDeck(ctx context.Context, q queryer, cond, learnerID string, arg any) (*domain.Deck, error) {
	var d domain.Deck
	err := q.QueryRowContext(ctx, db.rebind(`
		SELECT id, learner_id, name, description, card_count, created_at, updated_at
		FROM decks WHERE learner_id = ? AND `+cond), learnerID, arg).
		Scan(&d.ID, &d.LearnerID, &d.Name, &d.Description, &d.CardCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find deck: %w", err)
	}
	return &d, nil
}
