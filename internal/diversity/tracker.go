// Package diversity tracks the correct answers of recently generated Eiken
// questions per grade and flags when one answer keeps coming back.
package diversity

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Config bounds the windows and sets the guidance thresholds.
type Config struct {
	WindowSize int     // answers kept per grade
	MinSamples int     // no guidance below this many answers
	WarnBelow  float64 // score below which a warning is issued
	NoteBelow  float64 // score below which a softer note is issued
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		WindowSize: 10,
		MinSamples: 4,
		WarnBelow:  0.5,
		NoteBelow:  0.7,
	}
}

// Entry is one recorded answer.
type Entry struct {
	Answer     string    `json:"answer"`
	Grade      string    `json:"grade"`
	SessionID  string    `json:"session_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Stats describes the current window of a grade.
type Stats struct {
	Answers        []string       `json:"answers"`
	Frequencies    map[string]int `json:"frequencies"`
	MostCommon     []string       `json:"most_common"`
	DiversityScore float64        `json:"diversity_score"`
}

// Tracker keeps a FIFO window of recent answers for every grade.
// It is safe for concurrent use.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string][]Entry
}

// NewTracker creates an empty tracker. The thresholds in cfg are used as
// given: a WarnBelow or NoteBelow of 0 disables that tier. The zero Config
// selects DefaultConfig.
func NewTracker(cfg Config) *Tracker {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	cfg.WindowSize = max(cfg.WindowSize, 1)

	return &Tracker{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string][]Entry),
	}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// AddAnswer records answer for grade. The answer is trimmed and lower-cased;
// blank answers are ignored. When the grade's window is full the oldest
// answer is dropped.
func (t *Tracker) AddAnswer(answer, grade, sessionID string) {
	answer = normalize(answer)
	if answer == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := append(t.windows[grade], Entry{
		Answer:     answer,
		Grade:      grade,
		SessionID:  sessionID,
		RecordedAt: t.now(),
	})
	if over := len(w) - t.cfg.WindowSize; over > 0 {
		w = append([]Entry(nil), w[over:]...)
	}
	t.windows[grade] = w
}

// Clear forgets every grade's answers.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.windows = make(map[string][]Entry)
}

// History returns a copy of all recorded entries grouped by grade, oldest
// first within a grade.
func (t *Tracker) History() map[string][]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string][]Entry, len(t.windows))
	for grade, w := range t.windows {
		out[grade] = append([]Entry(nil), w...)
	}
	return out
}

// Stats computes frequencies and the diversity score of grade's window.
// An empty window has a score of 1.0 and no most common answer.
func (t *Tracker) Stats(grade string) Stats {
	t.mu.Lock()
	answers := make([]string, 0, len(t.windows[grade]))
	for _, e := range t.windows[grade] {
		answers = append(answers, e.Answer)
	}
	t.mu.Unlock()

	return computeStats(answers)
}

func computeStats(answers []string) Stats {
	stats := Stats{
		Answers:        answers,
		Frequencies:    make(map[string]int, len(answers)),
		DiversityScore: 1.0,
	}
	if len(answers) == 0 {
		return stats
	}

	order := firstSeen(answers)
	maxFreq := 0
	for _, a := range answers {
		stats.Frequencies[a]++
		maxFreq = max(maxFreq, stats.Frequencies[a])
	}
	for _, a := range order {
		if stats.Frequencies[a] == maxFreq {
			stats.MostCommon = append(stats.MostCommon, a)
		}
	}

	stats.DiversityScore = float64(len(order)) / float64(len(answers))
	return stats
}

// Guidance returns prompt text steering question generation away from
// overused answers, or "" when the window is too small or diverse enough.
func (t *Tracker) Guidance(grade string) string {
	return GuidanceText(t.Assess(grade))
}

// GuidanceText renders the guidance for a tier and the stats it was assessed
// from.
func GuidanceText(tier Tier, stats Stats) string {
	switch tier {
	case TierWarning:
		return warningText(stats)
	case TierNote:
		return noteText(stats)
	default:
		return ""
	}
}

// Tier classifies a window.
type Tier string

const (
	TierNone    Tier = "none"
	TierNote    Tier = "note"
	TierWarning Tier = "warning"
)

// Assess returns the guidance tier for grade together with the stats it was
// derived from.
func (t *Tracker) Assess(grade string) (Tier, Stats) {
	stats := t.Stats(grade)
	switch {
	case len(stats.Answers) < t.cfg.MinSamples:
		return TierNone, stats
	case stats.DiversityScore < t.cfg.WarnBelow:
		return TierWarning, stats
	case stats.DiversityScore < t.cfg.NoteBelow:
		return TierNote, stats
	default:
		return TierNone, stats
	}
}

func warningText(s Stats) string {
	counts := make([]string, 0, len(s.Frequencies))
	for _, a := range firstSeen(s.Answers) {
		counts = append(counts, fmt.Sprintf("%q x%d", a, s.Frequencies[a]))
	}

	var b strings.Builder
	b.WriteString("## ANSWER DIVERSITY WARNING\n\n")
	fmt.Fprintf(&b, "The last %d correct answers are repetitive (diversity %.0f%%): %s.\n\n",
		len(s.Answers), s.DiversityScore*100, strings.Join(counts, ", "))
	fmt.Fprintf(&b, "The next question MUST have a different correct answer than %s.\n", quoteCounts(s))
	b.WriteString("Pick another grammar point or vocabulary item so the answer key stays balanced,\n")
	b.WriteString("for example a different tense, modal verb, question word or be-verb form.\n")
	return b.String()
}

func noteText(s Stats) string {
	return fmt.Sprintf("## DIVERSITY NOTE\n\nMost frequent recent correct answer(s): %s.\n"+
		"Prefer a different grammar point to keep the answers varied.\n", quoteCounts(s))
}

func quoteCounts(s Stats) string {
	parts := make([]string, 0, len(s.MostCommon))
	for _, a := range s.MostCommon {
		parts = append(parts, fmt.Sprintf("%q (%d of %d)", a, s.Frequencies[a], len(s.Answers)))
	}
	return strings.Join(parts, ", ")
}

func firstSeen(answers []string) []string {
	seen := make(map[string]struct{}, len(answers))
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func normalize(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
