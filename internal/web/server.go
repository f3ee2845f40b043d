// Package web serves the JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/kotoba/internal/decksync"
	"github.com/conorfennell/kotoba/internal/diversity"
	"github.com/conorfennell/kotoba/internal/logging"
	"github.com/conorfennell/kotoba/internal/mastery"
	"github.com/conorfennell/kotoba/internal/metrics"
	"github.com/conorfennell/kotoba/internal/prompt"
	"github.com/conorfennell/kotoba/internal/storage"
)

const maxBodyBytes = 1 << 20

// Deps are the services the handlers use. Metrics and Logger may be nil.
type Deps struct {
	DB      *storage.DB
	Tracker *diversity.Tracker
	Syncer  *decksync.Syncer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	tracker  *diversity.Tracker
	syncer   *decksync.Syncer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mastery  *mastery.Params
	prompts  *prompt.Builder
	validate *validator.Validate
	now      func() time.Time
	router   chi.Router
}

// NewServer creates and configures a new server.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:       d.DB,
		tracker:  d.Tracker,
		syncer:   d.Syncer,
		metrics:  d.Metrics,
		logger:   logger,
		mastery:  mastery.DefaultParams(),
		prompts:  prompt.NewBuilder(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth())
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/decks", func(r chi.Router) {
			r.Get("/", s.handleListDecks())
			r.Post("/", s.handleCreateDeck())
			r.Get("/{id}", s.handleGetDeck())
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories())
			r.Post("/", s.handleCreateCategory())
			r.Patch("/{id}", s.handleUpdateCategory())
			r.Delete("/{id}", s.handleDeleteCategory())
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.handleListTags())
			r.Delete("/{name}", s.handleRemoveTag())
		})

		r.Route("/flashcards", func(r chi.Router) {
			r.Get("/", s.handleListCards())
			r.Post("/", s.handleCreateCard())
			r.Get("/stats", s.handleCardStats())
			r.Get("/due", s.handleDueCards())
			r.Post("/delete-batch", s.handleDeleteCards())
			r.Get("/{id}", s.handleGetCard())
			r.Delete("/{id}", s.handleDeleteCard())
			r.Get("/{id}/history", s.handleStudyHistory())
			r.Post("/{id}/study", s.handleStudy())
			r.Put("/{id}/category", s.handleSetCardCategory())
			r.Put("/{id}/tags", s.handleSetCardTags())
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources())
			r.Post("/", s.handleCreateSource())
			r.Delete("/{id}", s.handleDeleteSource())
			r.Post("/{id}/sync", s.handleSyncSource())
		})
		r.Post("/sync", s.handleSync())

		r.Route("/eiken", func(r chi.Router) {
			r.Post("/answers", s.handleRecordAnswer())
			r.Get("/diversity", s.handleDiversityHistory())
			r.Get("/diversity/{grade}", s.handleDiversity())
			r.Delete("/diversity", s.handleClearDiversity())
			r.Post("/prompts/grammar-fill", s.handleGrammarFillPrompt())
		})
	})
}

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, envelope{"success": false, "error": "database unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, envelope{"success": true, "status": "ok"})
	}
}

type envelope map[string]any

// errBadRequest marks a client error whose message is safe to return.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return errBadRequest{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ok writes a success envelope with the given fields.
func ok(w http.ResponseWriter, status int, fields envelope) {
	if fields == nil {
		fields = envelope{}
	}
	fields["success"] = true
	writeJSON(w, status, fields)
}

// fail maps err to a status and writes an error envelope. Unexpected errors
// are logged and hidden from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		msg    = "internal server error"
		bad    errBadRequest
		verrs  validator.ValidationErrors
	)

	switch {
	case errors.As(err, &bad):
		status, msg = http.StatusBadRequest, bad.msg
	case errors.As(err, &verrs):
		status, msg = http.StatusBadRequest, validationMessage(verrs)
	case errors.Is(err, storage.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, mastery.ErrNegativeCount), errors.Is(err, mastery.ErrCorrectExceedsReviews),
		errors.Is(err, prompt.ErrMissingTopic):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

func validationMessage(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return s.validate.Struct(dst)
}

// learner returns the required "learner" query parameter.
func learner(r *http.Request) (string, error) {
	id := r.URL.Query().Get("learner")
	if id == "" {
		return "", badRequest("learner is required")
	}
	return id, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}
