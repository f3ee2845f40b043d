package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/kotoba/internal/domain"
	"github.com/conorfennell/kotoba/internal/knol"
	"github.com/conorfennell/kotoba/internal/mastery"
	"github.com/conorfennell/kotoba/internal/storage"
)

type createDeckRequest struct {
	LearnerID   string `json:"learner_id" validate:"required,max=128"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

func (s *Server) handleCreateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDeckRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		deck, err := s.db.CreateDeck(r.Context(), req.LearnerID, req.Name, req.Description)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusCreated, envelope{"deck": deck})
	}
}

func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		deck, err := s.db.GetDeck(r.Context(), learnerID, chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"deck": deck})
	}
}

func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		decks, err := s.db.ListDecks(r.Context(), learnerID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if decks == nil {
			decks = []domain.Deck{}
		}
		ok(w, http.StatusOK, envelope{"decks": decks})
	}
}

type createCardRequest struct {
	LearnerID  string   `json:"learner_id" validate:"required,max=128"`
	DeckID     string   `json:"deck_id"`
	CategoryID string   `json:"category_id"`
	Front      string   `json:"front" validate:"required"`
	Back       string   `json:"back" validate:"required"`
	Context    string   `json:"context"`
	Tags       []string `json:"tags" validate:"max=20,dive,required,max=50"`
}

// handleCreateCard adds a manually written card.
func (s *Server) handleCreateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCardRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		card := &domain.Card{
			LearnerID:   req.LearnerID,
			DeckID:      req.DeckID,
			CategoryID:  req.CategoryID,
			Front:       req.Front,
			Back:        req.Back,
			Context:     req.Context,
			Tags:        req.Tags,
			CreatedFrom: domain.OriginManual,
		}
		card.Hash = knol.Hash(*card)

		if err := s.db.CreateCard(r.Context(), card); err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusCreated, envelope{"flashcard": card})
	}
}

func (s *Server) handleListCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			s.fail(w, r, err)
			return
		}

		cards, err := s.db.ListCards(r.Context(), storage.CardFilter{
			LearnerID:  learnerID,
			DeckID:     r.URL.Query().Get("deck"),
			CategoryID: r.URL.Query().Get("category"),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		ok(w, http.StatusOK, envelope{"flashcards": cards})
	}
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		card, err := s.db.GetCard(r.Context(), learnerID, chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"flashcard": card})
	}
}

// handleStudyHistory lists the answers recorded for a card, oldest first.
func (s *Server) handleStudyHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		cardID := chi.URLParam(r, "id")

		if _, err := s.db.GetCard(r.Context(), learnerID, cardID); err != nil {
			s.fail(w, r, err)
			return
		}
		events, err := s.db.StudyHistory(r.Context(), learnerID, cardID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if events == nil {
			events = []domain.StudyEvent{}
		}
		ok(w, http.StatusOK, envelope{"history": events})
	}
}

// handleCardStats returns total, due and mastered counts.
func (s *Server) handleCardStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		stats, err := s.db.CardStats(r.Context(), learnerID, s.now(), mastery.MaxLevel)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"stats": stats})
	}
}

func (s *Server) handleDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			s.fail(w, r, err)
			return
		}

		cards, err := s.db.DueCards(r.Context(), learnerID, s.now(), limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		ok(w, http.StatusOK, envelope{"flashcards": cards})
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if err := s.db.DeleteCard(r.Context(), learnerID, chi.URLParam(r, "id")); err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, nil)
	}
}

type deleteCardsRequest struct {
	LearnerID string   `json:"learner_id" validate:"required"`
	IDs       []string `json:"ids" validate:"min=1,max=500,dive,required"`
}

func (s *Server) handleDeleteCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteCardsRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		n, err := s.db.DeleteCards(r.Context(), req.LearnerID, req.IDs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"deleted": n})
	}
}

type studyRequest struct {
	LearnerID        string `json:"learner_id" validate:"required"`
	IsCorrect        *bool  `json:"is_correct" validate:"required"`
	ResponseTimeMs   *int   `json:"response_time_ms" validate:"omitempty,gte=0"`
	DifficultyRating *int   `json:"difficulty_rating" validate:"omitempty,min=1,max=5"`
}

// handleStudy records an answer and reschedules the card. The stored counts
// are read, rescheduled and written back in one transaction.
func (s *Server) handleStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req studyRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		now := s.now().UTC()
		correct := *req.IsCorrect
		ev := &domain.StudyEvent{
			CardID:           chi.URLParam(r, "id"),
			LearnerID:        req.LearnerID,
			IsCorrect:        correct,
			ResponseTimeMs:   req.ResponseTimeMs,
			DifficultyRating: req.DifficultyRating,
			StudiedAt:        now,
		}

		var rate float64
		review, err := s.db.RecordStudy(r.Context(), ev, func(prior domain.ReviewRecord) (domain.ReviewRecord, error) {
			counts := mastery.Counts{Reviews: prior.ReviewCount, Correct: prior.CorrectCount}
			if err := mastery.Validate(counts); err != nil {
				return prior, err
			}

			res := s.mastery.Next(counts, correct, now)
			rate = res.CorrectRate
			return domain.ReviewRecord{
				ReviewCount:    res.ReviewCount,
				CorrectCount:   res.CorrectCount,
				MasteryLevel:   res.MasteryLevel,
				LastReviewedAt: &res.LastReviewedAt,
				NextReviewAt:   &res.NextReviewAt,
			}, nil
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.metrics.ObserveReview(correct, review.MasteryLevel)
		ok(w, http.StatusOK, envelope{
			"review":       review,
			"correct_rate": rate,
			"event":        ev,
		})
	}
}
