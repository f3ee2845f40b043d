package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/kotoba/internal/domain"
)

// InsertSource inserts a new source for the learner and returns its ID.
func (db *DB) InsertSource(ctx context.Context, src domain.Source) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		INSERT INTO sources (learner_id, deck_id, path, type)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), src.LearnerID, nullString(src.DeckID), src.Path, string(src.Type)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", src.Path, err)
	}
	return id, nil
}

// GetAllSources retrieves every stored source across learners.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	return db.querySources(ctx, `SELECT id, learner_id, deck_id, path, type, last_scanned_at FROM sources ORDER BY id`)
}

// ListSources retrieves the learner's sources.
func (db *DB) ListSources(ctx context.Context, learnerID string) ([]domain.Source, error) {
	return db.querySources(ctx, db.rebind(`
		SELECT id, learner_id, deck_id, path, type, last_scanned_at
		FROM sources WHERE learner_id = ? ORDER BY id
	`), learnerID)
}

func (db *DB) querySources(ctx context.Context, query string, args ...any) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var (
			s       domain.Source
			deckID  sql.NullString
			typ     string
			scanned sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.LearnerID, &deckID, &s.Path, &typ, &scanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		s.DeckID = deckID.String
		s.Type = domain.SourceType(typ)
		s.LastScannedAt = timePtr(scanned)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source together with the cards imported from it.
func (db *DB) DeleteSource(ctx context.Context, learnerID string, sourceID int64) error {
	return db.withinTx(ctx, func(tx *sql.Tx) error {
		decks, err := db.deckIDsForSource(ctx, tx, sourceID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, db.rebind(`
			DELETE FROM flashcards WHERE source_id = ? AND learner_id = ?
		`), sourceID, learnerID); err != nil {
			return fmt.Errorf("failed to delete cards of source %d: %w", sourceID, err)
		}

		res, err := tx.ExecContext(ctx, db.rebind(`
			DELETE FROM sources WHERE id = ? AND learner_id = ?
		`), sourceID, learnerID)
		if err != nil {
			return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return db.refreshDeckCounts(ctx, tx, decks...)
	})
}

// UpdateSourceLastScanned stamps the source with the current time.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		UPDATE sources SET last_scanned_at = ? WHERE id = ?
	`), db.now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// CardHashesBySource maps content hash to card ID for every card imported
// from the source.
func (db *DB) CardHashesBySource(ctx context.Context, sourceID int64) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT content_hash, id FROM flashcards WHERE source_id = ?
	`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var hash, id string
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, fmt.Errorf("failed to scan card hash for source ID %d: %w", sourceID, err)
		}
		hashes[hash] = id
	}
	return hashes, rows.Err()
}

// ImportCards inserts new cards from a source and removes the source's cards
// whose IDs are listed in orphaned, then refreshes the affected deck counts.
func (db *DB) ImportCards(ctx context.Context, src domain.Source, cards []*domain.Card, orphaned []string) error {
	return db.withinTx(ctx, func(tx *sql.Tx) error {
		decks, err := db.deckIDsForSource(ctx, tx, src.ID)
		if err != nil {
			return err
		}

		for _, c := range cards {
			c.LearnerID = src.LearnerID
			c.SourceID = src.ID
			c.CreatedFrom = domain.OriginImport
			if err := db.insertCard(ctx, tx, c); err != nil {
				return err
			}
			decks = append(decks, c.DeckID)
		}

		for _, id := range orphaned {
			if _, err := tx.ExecContext(ctx, db.rebind(`
				DELETE FROM flashcards WHERE id = ? AND source_id = ?
			`), id, src.ID); err != nil {
				return fmt.Errorf("failed to delete orphaned card %s: %w", id, err)
			}
		}
		return db.refreshDeckCounts(ctx, tx, decks...)
	})
}

func (db *DB) deckIDsForSource(ctx context.Context, q queryer, sourceID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, db.rebind(`
		SELECT DISTINCT deck_id FROM flashcards WHERE source_id = ? AND deck_id IS NOT NULL
	`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindSource retrieves one of the learner's sources.
func (db *DB) FindSource(ctx context.Context, learnerID string, sourceID int64) (*domain.Source, error) {
	sources, err := db.querySources(ctx, db.rebind(`
		SELECT id, learner_id, deck_id, path, type, last_scanned_at
		FROM sources WHERE learner_id = ? AND id = ?
	`), learnerID, sourceID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrNotFound
	}
	return &sources[0], nil
}
