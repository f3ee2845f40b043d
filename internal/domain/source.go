package domain

import "time"

// SourceType tells the sync process how to fetch a source.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// Source is a directory or git repository of markdown decks that is
// imported into a learner's collection.
type Source struct {
	ID            int64      `json:"id"`
	LearnerID     string     `json:"learner_id"`
	DeckID        string     `json:"deck_id,omitempty"`
	Path          string     `json:"path"`
	Type          SourceType `json:"type"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}
