package domain

import "time"

// ReviewLog records a single rating of a card. Rows are append-only.
// The Rating corresponds to:
// 1: Again (Incorrect)
// 2: Hard
// 3: Good
// 4: Easy
type ReviewLog struct {
	ID           string    `db:"id" json:"id"`
	DeckID       string    `db:"deck_id" json:"deck_id"`
	CardID       string    `db:"card_id" json:"card_id"`
	Rating       int       `db:"rating" json:"rating"`
	RatedAt      time.Time `db:"rated_at" json:"rated_at"`
	Mode         string    `db:"mode" json:"mode"`
	PrevStatus   Status    `db:"prev_status" json:"prev_status"`
	PrevInterval float64   `db:"prev_interval" json:"prev_interval"`
	NewInterval  float64   `db:"new_interval" json:"new_interval"`
	PrevEase     float64   `db:"prev_ease" json:"prev_ease"`
	NewEase      float64   `db:"new_ease" json:"new_ease"`
	DurationMS   int64     `db:"duration_ms" json:"duration_ms"`
}

// StudyState is the per-deck position state used by the ordered and
// sequential study modes.
type StudyState struct {
	DeckID         string    `db:"deck_id" json:"deck_id"`
	Cursor         int       `db:"cursor_pos" json:"cursor"`
	NewStartPos    int       `db:"new_start_pos" json:"new_start_pos"`
	ReviewStartPos int       `db:"review_start_pos" json:"review_start_pos"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SourceType tells how a source path is fetched.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// Source is a local directory or git repository that feeds a deck.
type Source struct {
	ID          int64      `db:"id" json:"id"`
	DeckID      string     `db:"deck_id" json:"deck_id"`
	Path        string     `db:"path" json:"path"`
	Type        SourceType `db:"type" json:"type"`
	LastScanned *time.Time `db:"last_scanned" json:"last_scanned"`
}
