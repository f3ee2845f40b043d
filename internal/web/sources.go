package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/kotoba/internal/decksync"
	"github.com/conorfennell/kotoba/internal/domain"
)

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		sources, err := s.db.ListSources(r.Context(), learnerID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if sources == nil {
			sources = []domain.Source{}
		}
		ok(w, http.StatusOK, envelope{"sources": sources})
	}
}

type createSourceRequest struct {
	LearnerID string `json:"learner_id" validate:"required"`
	Path      string `json:"path" validate:"required"`
	// Deck receives cards from files without a "# Deck:" heading.
	Deck string `json:"deck" validate:"max=100"`
}

// handleCreateSource registers a local directory or git URL. Cards are
// imported on the next sync.
func (s *Server) handleCreateSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSourceRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		src := domain.Source{
			LearnerID: req.LearnerID,
			Path:      req.Path,
			Type:      decksync.TypeOf(req.Path),
		}
		if req.Deck != "" {
			deck, err := s.db.EnsureDeck(r.Context(), req.LearnerID, req.Deck)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			src.DeckID = deck.ID
		}

		id, err := s.db.InsertSource(r.Context(), src)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		src.ID = id
		ok(w, http.StatusCreated, envelope{"source": src})
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.fail(w, r, badRequest("invalid source ID"))
			return
		}

		if err := s.db.DeleteSource(r.Context(), learnerID, id); err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, nil)
	}
}

// handleSyncSource syncs one of the learner's sources.
func (s *Server) handleSyncSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LearnerID string `json:"learner_id" validate:"required"`
		}
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.fail(w, r, badRequest("invalid source ID"))
			return
		}

		src, err := s.db.FindSource(r.Context(), req.LearnerID, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"report": s.syncer.RunSource(r.Context(), *src)})
	}
}

type syncRequest struct {
	LearnerID string `json:"learner_id"`
}

// handleSync runs a sync in the foreground. With a learner_id only that
// learner's sources are synced.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if r.ContentLength != 0 {
			if err := s.decode(w, r, &req); err != nil {
				s.fail(w, r, err)
				return
			}
		}

		var (
			reports []decksync.Report
			err     error
		)
		if req.LearnerID != "" {
			reports, err = s.syncer.RunLearner(r.Context(), req.LearnerID)
		} else {
			reports, err = s.syncer.RunSync(r.Context())
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if reports == nil {
			reports = []decksync.Report{}
		}
		ok(w, http.StatusOK, envelope{"reports": reports})
	}
}
