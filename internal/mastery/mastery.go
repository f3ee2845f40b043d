// Package mastery turns flashcard answers into a mastery level and the date
// of the next review.
package mastery

import (
	"errors"
	"time"
)

// MaxLevel is the highest mastery level a card can reach.
const MaxLevel = 5

var (
	ErrNegativeCount         = errors.New("mastery: review and correct counts must not be negative")
	ErrCorrectExceedsReviews = errors.New("mastery: correct count exceeds review count")
)

// Threshold assigns Level when the correct rate is at least Rate and the card
// has been reviewed at least MinReviews times.
type Threshold struct {
	Rate       float64
	MinReviews int
	Level      int
}

// Params holds the threshold cascade and the review interval table.
type Params struct {
	Thresholds   []Threshold // evaluated top to bottom, first match wins
	IntervalDays []int       // indexed by mastery level
}

// DefaultParams returns the production threshold table and intervals.
func DefaultParams() *Params {
	return &Params{
		Thresholds: []Threshold{
			{Rate: 0.95, MinReviews: 10, Level: 5},
			{Rate: 0.90, MinReviews: 8, Level: 4},
			{Rate: 0.80, MinReviews: 5, Level: 3},
			{Rate: 0.70, MinReviews: 3, Level: 2},
			{Rate: 0.50, MinReviews: 0, Level: 1},
		},
		IntervalDays: []int{1, 3, 7, 14, 30, 90},
	}
}

// Counts are the persisted review counters of a card before an answer.
type Counts struct {
	Reviews int
	Correct int
}

// Validate reports whether c may be passed to Next.
func Validate(c Counts) error {
	if c.Reviews < 0 || c.Correct < 0 {
		return ErrNegativeCount
	}
	if c.Correct > c.Reviews {
		return ErrCorrectExceedsReviews
	}
	return nil
}

// Result is the review state to write back after an answer.
type Result struct {
	ReviewCount    int
	CorrectCount   int
	CorrectRate    float64
	MasteryLevel   int
	LastReviewedAt time.Time
	NextReviewAt   time.Time
}

// Next applies one answer to the prior counts. It has no side effects;
// callers persist the result.
func (p *Params) Next(prior Counts, correct bool, now time.Time) Result {
	reviews := prior.Reviews + 1
	hits := prior.Correct
	if correct {
		hits++
	}

	rate := float64(hits) / float64(reviews)
	level := p.Level(rate, reviews)

	return Result{
		ReviewCount:    reviews,
		CorrectCount:   hits,
		CorrectRate:    rate,
		MasteryLevel:   level,
		LastReviewedAt: now,
		NextReviewAt:   now.AddDate(0, 0, p.Interval(level)),
	}
}

// Level returns the first matching threshold level, or 0.
func (p *Params) Level(rate float64, reviews int) int {
	for _, t := range p.Thresholds {
		if rate >= t.Rate && reviews >= t.MinReviews {
			return t.Level
		}
	}
	return 0
}

// Interval returns the review offset in days for level, clamped to the table.
func (p *Params) Interval(level int) int {
	if len(p.IntervalDays) == 0 {
		return 1
	}
	if level < 0 {
		level = 0
	}
	if level >= len(p.IntervalDays) {
		level = len(p.IntervalDays) - 1
	}
	return p.IntervalDays[level]
}
