package domain

import "time"

// CardOrigin records how a flashcard entered the system.
type CardOrigin string

const (
	OriginManual CardOrigin = "manual"
	OriginImport CardOrigin = "import"
)

// Card is a single flashcard: a word or phrase on the front, its meaning on
// the back and an optional example sentence.
type Card struct {
	ID          string       `json:"id"`
	LearnerID   string       `json:"learner_id"`
	DeckID      string       `json:"deck_id,omitempty"`
	CategoryID  string       `json:"category_id,omitempty"`
	Front       string       `json:"front"`
	Back        string       `json:"back"`
	Context     string       `json:"context,omitempty"`
	Tags        []string     `json:"tags"`
	Hash        string       `json:"content_hash,omitempty"`
	SourceID    int64        `json:"source_id,omitempty"`
	CreatedFrom CardOrigin   `json:"created_from"`
	Review      ReviewRecord `json:"review"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ReviewRecord is the review state stored alongside every card.
// CorrectCount never exceeds ReviewCount.
type ReviewRecord struct {
	ReviewCount    int        `json:"review_count"`
	CorrectCount   int        `json:"correct_count"`
	MasteryLevel   int        `json:"mastery_level"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	NextReviewAt   *time.Time `json:"next_review_at,omitempty"`
}

// Deck groups cards for one learner.
type Deck struct {
	ID          string    `json:"id"`
	LearnerID   string    `json:"learner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CardCount   int       `json:"card_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category is a learner's label for cards, shown with a color and an icon.
// A card belongs to at most one category.
type Category struct {
	ID        string    `json:"id"`
	LearnerID string    `json:"learner_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagCount is a tag in use on a learner's cards.
type TagCount struct {
	Name  string `json:"name"`
	Cards int    `json:"cards"`
}

// StudyEvent records a single answer given while studying a card.
type StudyEvent struct {
	ID               string    `json:"id"`
	CardID           string    `json:"card_id"`
	LearnerID        string    `json:"learner_id"`
	IsCorrect        bool      `json:"is_correct"`
	ResponseTimeMs   *int      `json:"response_time_ms,omitempty"`
	DifficultyRating *int      `json:"difficulty_rating,omitempty"`
	StudiedAt        time.Time `json:"studied_at"`
}

// CardStats summarises a learner's collection.
type CardStats struct {
	Total     int `json:"total"`
	ReviewDue int `json:"review_due"`
	Mastered  int `json:"mastered"`
}
