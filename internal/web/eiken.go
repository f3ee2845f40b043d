package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/kotoba/internal/diversity"
	"github.com/conorfennell/kotoba/internal/prompt"
)

const gradeRule = "required,oneof=5 4 3 pre2 2 pre1 1"

type recordAnswerRequest struct {
	Answer    string `json:"answer" validate:"max=200"`
	Grade     string `json:"grade" validate:"required,oneof=5 4 3 pre2 2 pre1 1"`
	SessionID string `json:"session_id" validate:"max=128"`
}

// handleRecordAnswer records the correct answer of a generated question.
// Blank answers are accepted and ignored.
func (s *Server) handleRecordAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordAnswerRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		recorded := strings.TrimSpace(req.Answer) != ""
		s.tracker.AddAnswer(req.Answer, req.Grade, req.SessionID)

		tier, stats := s.tracker.Assess(req.Grade)
		s.metrics.SetDiversityScore(req.Grade, stats.DiversityScore)
		ok(w, http.StatusOK, envelope{
			"recorded": recorded,
			"stats":    stats,
			"tier":     tier,
		})
	}
}

// handleDiversity returns a grade's stats and the guidance text for it.
func (s *Server) handleDiversity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grade := chi.URLParam(r, "grade")
		if err := s.validate.Var(grade, gradeRule); err != nil {
			s.fail(w, r, badRequest("unknown grade %q", grade))
			return
		}

		tier, stats := s.tracker.Assess(grade)
		ok(w, http.StatusOK, envelope{
			"grade":    grade,
			"stats":    stats,
			"tier":     tier,
			"guidance": diversity.GuidanceText(tier, stats),
		})
	}
}

func (s *Server) handleDiversityHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok(w, http.StatusOK, envelope{"history": s.tracker.History()})
	}
}

func (s *Server) handleClearDiversity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.tracker.Clear()
		ok(w, http.StatusOK, nil)
	}
}

// handleGrammarFillPrompt builds the grammar fill-in prompt with the current
// diversity guidance for the blueprint's grade.
func (s *Server) handleGrammarFillPrompt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var bp prompt.Blueprint
		if err := s.decode(w, r, &bp); err != nil {
			s.fail(w, r, err)
			return
		}

		tier, stats := s.tracker.Assess(bp.Grade)
		p, err := s.prompts.BuildGrammarFill(bp, diversity.GuidanceText(tier, stats))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.metrics.SetDiversityScore(bp.Grade, stats.DiversityScore)
		s.metrics.ObserveGuidance(string(tier))
		ok(w, http.StatusOK, envelope{"prompt": p, "tier": tier})
	}
}
