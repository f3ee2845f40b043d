package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/kotoba/internal/decksync"
	"github.com/conorfennell/kotoba/internal/diversity"
	"github.com/conorfennell/kotoba/internal/metrics"
	"github.com/conorfennell/kotoba/internal/storage"
)

const learnerID = "app1_student42"

type testServer struct {
	*Server
	db *storage.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	s := NewServer(Deps{
		DB:      db,
		Tracker: diversity.NewTracker(diversity.DefaultConfig()),
		Syncer:  decksync.New(db, t.TempDir(), m),
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	s.prompts.Coin = func() bool { return true }
	return &testServer{Server: s, db: db}
}

// do sends a request and decodes the JSON response.
func (ts *testServer) do(t *testing.T, method, target string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(method, target, rdr))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (ts *testServer) createCard(t *testing.T, front, back, deckID string) string {
	t.Helper()
	code, out := ts.do(t, http.MethodPost, "/api/flashcards", map[string]any{
		"learner_id": learnerID, "front": front, "back": back, "deck_id": deckID,
	})
	require.Equal(t, http.StatusCreated, code, out)
	return out["flashcard"].(map[string]any)["id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDecksAndFlashcards(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodPost, "/api/decks", map[string]any{"learner_id": learnerID, "name": "N5"})
	require.Equal(t, http.StatusCreated, code)
	deckID := out["deck"].(map[string]any)["id"].(string)

	ts.createCard(t, "食べる", "to eat", deckID)
	ts.createCard(t, "飲む", "to drink", deckID)

	code, out = ts.do(t, http.MethodGet, "/api/decks?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	decks := out["decks"].([]any)
	require.Len(t, decks, 1)
	assert.Equal(t, float64(2), decks[0].(map[string]any)["card_count"])

	code, out = ts.do(t, http.MethodGet, "/api/flashcards?learner="+learnerID+"&deck="+deckID+"&limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["flashcards"].([]any), 1)

	code, out = ts.do(t, http.MethodGet, "/api/decks", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["success"])

	code, _ = ts.do(t, http.MethodGet, "/api/flashcards?learner=x&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateCardValidation(t *testing.T) {
	ts := newTestServer(t)

	testCases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing front", map[string]any{"learner_id": learnerID, "back": "b"}, http.StatusBadRequest},
		{"missing learner", map[string]any{"front": "f", "back": "b"}, http.StatusBadRequest},
		{"unknown deck", map[string]any{"learner_id": learnerID, "front": "f", "back": "b", "deck_id": "nope"}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := ts.do(t, http.MethodPost, "/api/flashcards", tc.body)
			assert.Equal(t, tc.want, code)
			assert.Equal(t, false, out["success"])
			assert.NotEmpty(t, out["error"])
		})
	}

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/flashcards", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudy(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createCard(t, "書く", "to write", "")

	// One correct answer on a new card: level 1, next review in 3 days.
	code, out := ts.do(t, http.MethodPost, "/api/flashcards/"+id+"/study", map[string]any{
		"learner_id": learnerID, "is_correct": true, "response_time_ms": 900,
	})
	require.Equal(t, http.StatusOK, code, out)
	review := out["review"].(map[string]any)
	assert.Equal(t, float64(1), review["review_count"])
	assert.Equal(t, float64(1), review["correct_count"])
	assert.Equal(t, float64(1), review["mastery_level"])
	assert.Equal(t, "2026-03-04T09:00:00Z", review["next_review_at"])
	assert.Equal(t, float64(1), out["correct_rate"])

	code, out = ts.do(t, http.MethodPost, "/api/flashcards/"+id+"/study", map[string]any{
		"learner_id": learnerID, "is_correct": false,
	})
	require.Equal(t, http.StatusOK, code)
	review = out["review"].(map[string]any)
	assert.Equal(t, float64(2), review["review_count"])
	assert.Equal(t, float64(1), review["correct_count"])
	assert.Equal(t, float64(1), review["mastery_level"])

	history, err := ts.db.StudyHistory(context.Background(), learnerID, id)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	code, _ = ts.do(t, http.MethodPost, "/api/flashcards/missing/study", map[string]any{"learner_id": learnerID, "is_correct": true})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodPost, "/api/flashcards/"+id+"/study", map[string]any{"learner_id": learnerID})
	assert.Equal(t, http.StatusBadRequest, code, "is_correct is required")

	code, _ = ts.do(t, http.MethodPost, "/api/flashcards/"+id+"/study", map[string]any{
		"learner_id": learnerID, "is_correct": true, "difficulty_rating": 9,
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatsDueAndDelete(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createCard(t, "山", "mountain", "")
	b := ts.createCard(t, "川", "river", "")
	c := ts.createCard(t, "田", "rice field", "")

	code, _ := ts.do(t, http.MethodPost, "/api/flashcards/"+a+"/study", map[string]any{"learner_id": learnerID, "is_correct": true})
	require.Equal(t, http.StatusOK, code)

	// Three days later the card is due.
	ts.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

	code, out := ts.do(t, http.MethodGet, "/api/flashcards/stats?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"total": float64(3), "review_due": float64(1), "mastered": float64(0)}, out["stats"])

	code, out = ts.do(t, http.MethodGet, "/api/flashcards/due?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	due := out["flashcards"].([]any)
	require.Len(t, due, 1)
	assert.Equal(t, a, due[0].(map[string]any)["id"])

	code, out = ts.do(t, http.MethodPost, "/api/flashcards/delete-batch", map[string]any{
		"learner_id": learnerID, "ids": []string{a, b, "unknown"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), out["deleted"])

	code, _ = ts.do(t, http.MethodPost, "/api/flashcards/delete-batch", map[string]any{"learner_id": learnerID, "ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodDelete, "/api/flashcards/"+c+"?learner="+learnerID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodDelete, "/api/flashcards/"+c+"?learner="+learnerID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSourcesAndSync(t *testing.T) {
	ts := newTestServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kanji.md"), []byte("Q: 山\nA: mountain\n---\nQ: 川\nA: river\n"), 0o644))

	code, out := ts.do(t, http.MethodPost, "/api/sources", map[string]any{"learner_id": learnerID, "path": dir, "deck": "Kanji"})
	require.Equal(t, http.StatusCreated, code, out)
	src := out["source"].(map[string]any)
	assert.Equal(t, "local", src["type"])
	assert.NotEmpty(t, src["deck_id"])
	sourceID := int64(src["id"].(float64))

	code, out = ts.do(t, http.MethodPost, "/api/sync", map[string]any{"learner_id": learnerID})
	require.Equal(t, http.StatusOK, code)
	reports := out["reports"].([]any)
	require.Len(t, reports, 1)
	assert.Equal(t, float64(2), reports[0].(map[string]any)["inserted"])

	code, out = ts.do(t, http.MethodGet, "/api/decks?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), out["decks"].([]any)[0].(map[string]any)["card_count"])

	code, out = ts.do(t, http.MethodGet, "/api/sources?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["sources"].([]any), 1)

	code, _ = ts.do(t, http.MethodDelete, "/api/sources/abc?learner="+learnerID, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	path := "/api/sources/" + strconv.FormatInt(sourceID, 10) + "?learner=" + learnerID
	code, _ = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = ts.do(t, http.MethodGet, "/api/flashcards/stats?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), out["stats"].(map[string]any)["total"])

	code, out = ts.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["reports"])
}

func TestEikenDiversity(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodGet, "/api/eiken/diversity/pre2", nil)
	require.Equal(t, http.StatusOK, code)
	stats := out["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["diversity_score"])
	assert.Nil(t, stats["most_common"])
	assert.Equal(t, "", out["guidance"])

	for _, a := range []string{"did", "Did ", "did", "was"} {
		code, out = ts.do(t, http.MethodPost, "/api/eiken/answers", map[string]any{"answer": a, "grade": "pre2", "session_id": "s1"})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, out["recorded"])
	}
	assert.Equal(t, "note", out["tier"])

	code, out = ts.do(t, http.MethodPost, "/api/eiken/answers", map[string]any{"answer": "  ", "grade": "pre2"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["recorded"])

	code, out = ts.do(t, http.MethodGet, "/api/eiken/diversity/pre2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.5, out["stats"].(map[string]any)["diversity_score"])
	assert.Equal(t, "note", out["tier"])
	assert.Contains(t, out["guidance"], `"did" (3 of 4)`)

	code, out = ts.do(t, http.MethodGet, "/api/eiken/diversity", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["history"].(map[string]any)["pre2"], 4)

	code, _ = ts.do(t, http.MethodPost, "/api/eiken/answers", map[string]any{"answer": "did", "grade": "9"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodGet, "/api/eiken/diversity/9", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodDelete, "/api/eiken/diversity", nil)
	require.Equal(t, http.StatusOK, code)
	code, out = ts.do(t, http.MethodGet, "/api/eiken/diversity/pre2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["stats"].(map[string]any)["answers"])
}

func TestGrammarFillPrompt(t *testing.T) {
	ts := newTestServer(t)
	for _, a := range []string{"went", "went", "went", "went"} {
		ts.tracker.AddAnswer(a, "3", "")
	}

	code, out := ts.do(t, http.MethodPost, "/api/eiken/prompts/grammar-fill", map[string]any{
		"grade":            "3",
		"topic_en":         "school trip",
		"topic_ja":         "修学旅行",
		"grammar_patterns": []string{"past simple"},
	})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "warning", out["tier"])

	p := out["prompt"].(map[string]any)
	assert.Equal(t, true, p["dialogue"])
	user := p["user"].(string)
	assert.Contains(t, user, "Topic: school trip (修学旅行)")
	assert.Contains(t, user, "## ANSWER DIVERSITY WARNING")

	code, _ = ts.do(t, http.MethodPost, "/api/eiken/prompts/grammar-fill", map[string]any{
		"grade": "3", "grammar_patterns": []string{"past simple"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDiversityReadsDoNotCountGuidance(t *testing.T) {
	ts := newTestServer(t)
	for _, a := range []string{"went", "went", "went", "went"} {
		ts.tracker.AddAnswer(a, "3", "")
	}

	for i := 0; i < 3; i++ {
		code, out := ts.do(t, http.MethodGet, "/api/eiken/diversity/3", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "warning", out["tier"])
		assert.Contains(t, out["guidance"], "## ANSWER DIVERSITY WARNING")
	}
	assert.NotContains(t, ts.scrape(t), "kotoba_diversity_guidance_total")

	code, out := ts.do(t, http.MethodPost, "/api/eiken/prompts/grammar-fill", map[string]any{
		"grade": "3", "topic_en": "summer", "grammar_patterns": []string{"past simple"},
	})
	require.Equal(t, http.StatusOK, code, out)
	assert.Contains(t, ts.scrape(t), `kotoba_diversity_guidance_total{tier="warning"} 1`)
}

func (ts *testServer) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCategoriesAndTags(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodPost, "/api/categories", map[string]any{"learner_id": learnerID, "name": "verbs"})
	require.Equal(t, http.StatusCreated, code, out)
	category := out["category"].(map[string]any)
	assert.Equal(t, "#8b5cf6", category["color"])
	categoryID := category["id"].(string)

	code, _ = ts.do(t, http.MethodPost, "/api/categories", map[string]any{"learner_id": learnerID, "name": "x", "color": "purple"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = ts.do(t, http.MethodPatch, "/api/categories/"+categoryID, map[string]any{"learner_id": learnerID, "icon": "🏃"})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "verbs", out["category"].(map[string]any)["name"])
	assert.Equal(t, "🏃", out["category"].(map[string]any)["icon"])

	code, out = ts.do(t, http.MethodGet, "/api/categories?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["categories"].([]any), 1)

	id := ts.createCard(t, "走る", "to run", "")
	ts.createCard(t, "赤い", "red", "")

	code, _ = ts.do(t, http.MethodPut, "/api/flashcards/"+id+"/category", map[string]any{"learner_id": learnerID, "category_id": categoryID})
	require.Equal(t, http.StatusOK, code)
	code, out = ts.do(t, http.MethodGet, "/api/flashcards?learner="+learnerID+"&category="+categoryID, nil)
	require.Equal(t, http.StatusOK, code)
	cards := out["flashcards"].([]any)
	require.Len(t, cards, 1)
	assert.Equal(t, id, cards[0].(map[string]any)["id"])

	code, _ = ts.do(t, http.MethodPut, "/api/flashcards/"+id+"/category", map[string]any{"learner_id": learnerID, "category_id": "missing"})
	assert.Equal(t, http.StatusNotFound, code)

	code, out = ts.do(t, http.MethodPut, "/api/flashcards/"+id+"/tags", map[string]any{"learner_id": learnerID, "tags": []string{"verb", " n5 ", "verb"}})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, []any{"verb", "n5"}, out["tags"])

	code, out = ts.do(t, http.MethodGet, "/api/tags?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{
		map[string]any{"name": "n5", "cards": float64(1)},
		map[string]any{"name": "verb", "cards": float64(1)},
	}, out["tags"])

	code, out = ts.do(t, http.MethodDelete, "/api/tags/verb?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), out["updated"])

	code, out = ts.do(t, http.MethodDelete, "/api/categories/"+categoryID+"?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code, out)

	code, out = ts.do(t, http.MethodGet, "/api/flashcards/"+id+"?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	card := out["flashcard"].(map[string]any)
	assert.Nil(t, card["category_id"])
	assert.Equal(t, []any{"n5"}, card["tags"])
}

func TestCardDeckAndHistoryLookups(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodPost, "/api/decks", map[string]any{"learner_id": learnerID, "name": "N4"})
	require.Equal(t, http.StatusCreated, code)
	deckID := out["deck"].(map[string]any)["id"].(string)
	id := ts.createCard(t, "読む", "to read", deckID)

	code, out = ts.do(t, http.MethodGet, "/api/decks/"+deckID+"?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), out["deck"].(map[string]any)["card_count"])
	code, _ = ts.do(t, http.MethodGet, "/api/decks/"+deckID+"?learner=someone_else", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = ts.do(t, http.MethodGet, "/api/flashcards/"+id+"/history?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["history"])

	for i, correct := range []bool{true, false} {
		at := time.Date(2026, 3, 1, 9, i, 0, 0, time.UTC)
		ts.now = func() time.Time { return at }
		code, _ = ts.do(t, http.MethodPost, "/api/flashcards/"+id+"/study", map[string]any{"learner_id": learnerID, "is_correct": correct})
		require.Equal(t, http.StatusOK, code)
	}

	code, out = ts.do(t, http.MethodGet, "/api/flashcards/"+id+"/history?learner="+learnerID, nil)
	require.Equal(t, http.StatusOK, code)
	history := out["history"].([]any)
	require.Len(t, history, 2)
	assert.Equal(t, true, history[0].(map[string]any)["is_correct"])
	assert.Equal(t, false, history[1].(map[string]any)["is_correct"])

	code, _ = ts.do(t, http.MethodGet, "/api/flashcards/missing/history?learner="+learnerID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = ts.do(t, http.MethodGet, "/api/flashcards/"+id+"/history", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSyncSingleSource(t *testing.T) {
	ts := newTestServer(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "n5.md"), []byte("Q: 水\nA: water\n"), 0o644))

	code, out := ts.do(t, http.MethodPost, "/api/sources", map[string]any{"learner_id": learnerID, "path": dir})
	require.Equal(t, http.StatusCreated, code, out)
	path := "/api/sources/" + strconv.FormatInt(int64(out["source"].(map[string]any)["id"].(float64)), 10) + "/sync"

	code, out = ts.do(t, http.MethodPost, path, map[string]any{"learner_id": learnerID})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, float64(1), out["report"].(map[string]any)["inserted"])

	code, _ = ts.do(t, http.MethodPost, path, map[string]any{"learner_id": "someone_else"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = ts.do(t, http.MethodPost, "/api/sources/abc/sync", map[string]any{"learner_id": learnerID})
	assert.Equal(t, http.StatusBadRequest, code)
}
