package domain

import "time"

// Status is the lifecycle label of a card.
type Status string

const (
	StatusNew       Status = "new"
	StatusLearning  Status = "learning"
	StatusReview    Status = "review"
	StatusSuspended Status = "suspended"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusLearning, StatusReview, StatusSuspended:
		return true
	}
	return false
}

// DefaultEaseFactor is the ease every card starts with.
const DefaultEaseFactor = 2.5

// Card represents a single question-answer-context entry together with
// its scheduling state.
type Card struct {
	ID       string `db:"id" json:"id"`
	DeckID   string `db:"deck_id" json:"deck_id"`
	Question string `db:"question" json:"question"`
	Answer   string `db:"answer" json:"answer"`
	Context  string `db:"context" json:"context,omitempty"`
	Hash     string `db:"hash" json:"hash"`

	Status         Status     `db:"status" json:"status"`
	IntervalDays   float64    `db:"interval_days" json:"interval_days"`
	EaseFactor     float64    `db:"ease_factor" json:"ease_factor"`
	DueAt          *time.Time `db:"due_at" json:"due_at"`
	LastReviewedAt *time.Time `db:"last_reviewed_at" json:"last_reviewed_at"`
	Repetitions    int        `db:"repetitions" json:"repetitions"`

	// Position is the creation order of the card within its deck.
	Position  int       `db:"position" json:"position"`
	SourceID  *int64    `db:"source_id" json:"source_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Version   int64     `db:"version" json:"version"`
}

// NewCard returns an unreviewed card with the initial scheduling state.
func NewCard(id, deckID string, createdAt time.Time) Card {
	return Card{
		ID:         id,
		DeckID:     deckID,
		Status:     StatusNew,
		EaseFactor: DefaultEaseFactor,
		CreatedAt:  createdAt,
	}
}

// IsDue reports whether the card is eligible for review at now.
// Cards that were never scheduled are always due.
func (c Card) IsDue(now time.Time) bool {
	if c.Status == StatusSuspended {
		return false
	}
	return c.DueAt == nil || !c.DueAt.After(now)
}

// Deck groups cards that are studied together.
type Deck struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
