package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/kotoba/internal/domain"
	"github.com/conorfennell/kotoba/internal/storage"
)

func (s *Server) handleListCategories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		categories, err := s.db.ListCategories(r.Context(), learnerID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if categories == nil {
			categories = []domain.Category{}
		}
		ok(w, http.StatusOK, envelope{"categories": categories})
	}
}

type createCategoryRequest struct {
	LearnerID string `json:"learner_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"required,max=100"`
	Color     string `json:"color" validate:"omitempty,hexcolor"`
	Icon      string `json:"icon" validate:"max=16"`
}

func (s *Server) handleCreateCategory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCategoryRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		c, err := s.db.CreateCategory(r.Context(), req.LearnerID, req.Name, req.Color, req.Icon)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusCreated, envelope{"category": c})
	}
}

type updateCategoryRequest struct {
	LearnerID string  `json:"learner_id" validate:"required"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	Color     *string `json:"color" validate:"omitempty,hexcolor"`
	Icon      *string `json:"icon" validate:"omitempty,min=1,max=16"`
}

// handleUpdateCategory changes the fields present in the body.
func (s *Server) handleUpdateCategory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateCategoryRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		c, err := s.db.UpdateCategory(r.Context(), req.LearnerID, chi.URLParam(r, "id"), storage.CategoryPatch{
			Name:  req.Name,
			Color: req.Color,
			Icon:  req.Icon,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"category": c})
	}
}

func (s *Server) handleDeleteCategory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if err := s.db.DeleteCategory(r.Context(), learnerID, chi.URLParam(r, "id")); err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, nil)
	}
}

type setCategoryRequest struct {
	LearnerID string `json:"learner_id" validate:"required"`
	// An empty CategoryID removes the card from its category.
	CategoryID string `json:"category_id"`
}

func (s *Server) handleSetCardCategory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setCategoryRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		if err := s.db.SetCardCategory(r.Context(), req.LearnerID, chi.URLParam(r, "id"), req.CategoryID); err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, nil)
	}
}

func (s *Server) handleListTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		tags, err := s.db.ListTags(r.Context(), learnerID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"tags": tags})
	}
}

// handleRemoveTag strips a tag from every card of the learner.
func (s *Server) handleRemoveTag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID, err := learner(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		n, err := s.db.RemoveTag(r.Context(), learnerID, chi.URLParam(r, "name"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"updated": n})
	}
}

type setTagsRequest struct {
	LearnerID string   `json:"learner_id" validate:"required"`
	Tags      []string `json:"tags" validate:"required,max=20,dive,max=50"`
}

// handleSetCardTags replaces a card's tags.
func (s *Server) handleSetCardTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setTagsRequest
		if err := s.decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		tags, err := s.db.SetCardTags(r.Context(), req.LearnerID, chi.URLParam(r, "id"), req.Tags)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, envelope{"tags": tags})
	}
}
