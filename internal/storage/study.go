package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/kotoba/internal/domain"
)

// ReviewFunc computes the review state to store from the card's current one.
type ReviewFunc func(prior domain.ReviewRecord) (domain.ReviewRecord, error)

// RecordStudy stores a study event and the card's new review state in one
// transaction. The card row is read and rewritten under a lock so concurrent
// answers for the same card are not lost. The event's ID is assigned here.
func (db *DB) RecordStudy(ctx context.Context, ev *domain.StudyEvent, next ReviewFunc) (domain.ReviewRecord, error) {
	var updated domain.ReviewRecord

	err := db.withinTx(ctx, func(tx *sql.Tx) error {
		var (
			prior      domain.ReviewRecord
			lastReview sql.NullTime
			nextReview sql.NullTime
		)
		err := tx.QueryRowContext(ctx, db.rebind(`
			SELECT COALESCE(review_count, 0), COALESCE(correct_count, 0), mastery_level, last_reviewed_at, next_review_at
			FROM flashcards WHERE id = ? AND learner_id = ?`+db.forUpdate()),
			ev.CardID, ev.LearnerID,
		).Scan(&prior.ReviewCount, &prior.CorrectCount, &prior.MasteryLevel, &lastReview, &nextReview)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read review state for card %s: %w", ev.CardID, err)
		}
		prior.LastReviewedAt = timePtr(lastReview)
		prior.NextReviewAt = timePtr(nextReview)

		updated, err = next(prior)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, db.rebind(`
			UPDATE flashcards
			SET review_count = ?,
			    correct_count = ?,
			    mastery_level = ?,
			    last_reviewed_at = ?,
			    next_review_at = ?,
			    updated_at = ?
			WHERE id = ? AND learner_id = ?
		`),
			updated.ReviewCount,
			updated.CorrectCount,
			updated.MasteryLevel,
			nullTime(updated.LastReviewedAt),
			nullTime(updated.NextReviewAt),
			db.now(),
			ev.CardID,
			ev.LearnerID,
		)
		if err != nil {
			return fmt.Errorf("failed to update review state for card %s: %w", ev.CardID, err)
		}

		ev.ID = uuid.NewString()
		if ev.StudiedAt.IsZero() {
			ev.StudiedAt = db.now()
		}
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO study_history (id, card_id, learner_id, is_correct, response_time_ms, difficulty_rating, studied_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), ev.ID, ev.CardID, ev.LearnerID, ev.IsCorrect, ev.ResponseTimeMs, ev.DifficultyRating, ev.StudiedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert study event for card %s: %w", ev.CardID, err)
		}
		return nil
	})
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	return updated, nil
}

// StudyHistory returns the study events recorded for a card, oldest first.
func (db *DB) StudyHistory(ctx context.Context, learnerID, cardID string) ([]domain.StudyEvent, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, card_id, learner_id, is_correct, response_time_ms, difficulty_rating, studied_at
		FROM study_history WHERE card_id = ? AND learner_id = ?
		ORDER BY studied_at, id
	`), cardID, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query study history: %w", err)
	}
	defer rows.Close()

	var events []domain.StudyEvent
	for rows.Next() {
		var (
			ev         domain.StudyEvent
			respTime   sql.NullInt64
			difficulty sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.CardID, &ev.LearnerID, &ev.IsCorrect, &respTime, &difficulty, &ev.StudiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan study event: %w", err)
		}
		if respTime.Valid {
			v := int(respTime.Int64)
			ev.ResponseTimeMs = &v
		}
		if difficulty.Valid {
			v := int(difficulty.Int64)
			ev.DifficultyRating = &v
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
