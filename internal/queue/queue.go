// Package queue builds the working set of cards for a study session.
package queue

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// Mode selects how a session's working set is built.
type Mode string

const (
	ModeSRS        Mode = "srs"
	ModeSequential Mode = "sequential"
	ModeRandom     Mode = "random"
	ModeOrdered    Mode = "ordered"
	ModeByDate     Mode = "by_date"
	ModeCramming   Mode = "cramming"
)

// Defaults applied when the matching Options field is zero.
const (
	DefaultNewCap      = 20
	DefaultNewBatch    = 100
	DefaultReviewBatch = 150
	DefaultBatchSize   = 20
)

// ErrUnknownMode is returned by Select for a mode it does not know.
var ErrUnknownMode = errors.New("queue: unknown mode")

// ParseMode maps a mode name to a Mode. An empty name is ModeSRS.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeSRS, nil
	case ModeSRS, ModeSequential, ModeRandom, ModeOrdered, ModeByDate, ModeCramming:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Options configures Select. Zero numeric fields take the package defaults.
type Options struct {
	Mode Mode `json:"mode"`

	// NewCap is the daily new-card limit in srs mode and NewStudiedToday
	// is how much of it was already used.
	NewCap          int `json:"new_cap,omitempty"`
	NewStudiedToday int `json:"-"`

	NewBatch    int `json:"new_batch,omitempty"`
	ReviewBatch int `json:"review_batch,omitempty"`

	// BatchSize is the number of cards drawn in random and ordered modes.
	BatchSize int `json:"batch_size,omitempty"`

	// Date and Location pick the calendar day for by-date mode.
	Date     time.Time      `json:"date,omitempty"`
	Location *time.Location `json:"-"`

	// Filter narrows a cramming session; MaxEase and WithinDays tune the
	// weak and due_soon filters.
	Filter     CramFilter `json:"filter,omitempty"`
	MaxEase    float64    `json:"max_ease,omitempty"`
	WithinDays int        `json:"within_days,omitempty"`
	// Shuffle randomizes each cramming round.
	Shuffle bool `json:"shuffle,omitempty"`
	// TimeLimit ends a cramming session early when positive.
	TimeLimit time.Duration `json:"time_limit,omitempty"`

	Rand *rand.Rand `json:"-"`
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Select returns the ordered working set for one session. Suspended cards
// never appear and no card appears twice. An empty deck yields an empty
// set.
func Select(cards []domain.Card, opts Options, state domain.StudyState, now time.Time) ([]domain.Card, error) {
	active := byPosition(eligible(cards))

	switch opts.Mode {
	case ModeSRS, "":
		return selectSRS(active, opts, now), nil
	case ModeSequential:
		return selectSequential(active, opts, state), nil
	case ModeRandom:
		return selectRandom(active, opts), nil
	case ModeOrdered:
		return selectOrdered(active, opts, state), nil
	case ModeByDate:
		return selectByDate(active, opts), nil
	case ModeCramming:
		return selectCramming(active, opts, now)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
}

func eligible(cards []domain.Card) []domain.Card {
	seen := make(map[string]bool, len(cards))
	out := make([]domain.Card, 0, len(cards))
	for _, c := range cards {
		if c.Status == domain.StatusSuspended || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// byPosition sorts cards in creation order.
func byPosition(cards []domain.Card) []domain.Card {
	slices.SortStableFunc(cards, func(a, b domain.Card) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return cards
}

// selectSRS returns due learning cards, then due review cards ordered by
// due time, then new cards up to the remaining daily cap.
func selectSRS(cards []domain.Card, opts Options, now time.Time) []domain.Card {
	var learning, review, fresh []domain.Card
	for _, c := range cards {
		switch {
		case c.Status == domain.StatusNew:
			fresh = append(fresh, c)
		case !c.IsDue(now):
		case c.Status == domain.StatusLearning:
			learning = append(learning, c)
		default:
			review = append(review, c)
		}
	}

	byDue := func(a, b domain.Card) int {
		switch {
		case a.DueAt == nil && b.DueAt == nil:
			return 0
		case a.DueAt == nil:
			return -1
		case b.DueAt == nil:
			return 1
		}
		return a.DueAt.Compare(*b.DueAt)
	}
	slices.SortStableFunc(learning, byDue)
	slices.SortStableFunc(review, byDue)

	remaining := max(0, orDefault(opts.NewCap, DefaultNewCap)-opts.NewStudiedToday)
	if len(fresh) > remaining {
		fresh = fresh[:remaining]
	}

	out := make([]domain.Card, 0, len(learning)+len(review)+len(fresh))
	out = append(out, learning...)
	out = append(out, review...)
	return append(out, fresh...)
}

// selectSequential walks new cards and reviewable cards in creation order
// from their saved start positions. The review window wraps to the start
// of the deck when it runs short.
func selectSequential(cards []domain.Card, opts Options, state domain.StudyState) []domain.Card {
	newBatch := orDefault(opts.NewBatch, DefaultNewBatch)
	reviewBatch := orDefault(opts.ReviewBatch, DefaultReviewBatch)

	var fresh, reviewable []domain.Card
	for _, c := range cards {
		if c.Status == domain.StatusNew {
			if c.Position >= state.NewStartPos && len(fresh) < newBatch {
				fresh = append(fresh, c)
			}
			continue
		}
		reviewable = append(reviewable, c)
	}

	var review []domain.Card
	picked := make(map[string]bool)
	for _, c := range reviewable {
		if len(review) == reviewBatch {
			break
		}
		if c.Position >= state.ReviewStartPos {
			review = append(review, c)
			picked[c.ID] = true
		}
	}
	for _, c := range reviewable {
		if len(review) == reviewBatch {
			break
		}
		if !picked[c.ID] {
			review = append(review, c)
		}
	}

	return append(fresh, review...)
}

func selectRandom(cards []domain.Card, opts Options) []domain.Card {
	shuffle := rand.Shuffle
	if opts.Rand != nil {
		shuffle = opts.Rand.Shuffle
	}
	shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	n := min(orDefault(opts.BatchSize, DefaultBatchSize), len(cards))
	return cards[:n]
}

// selectOrdered takes a batch starting at the saved cursor, wrapping once
// to the start of the deck.
func selectOrdered(cards []domain.Card, opts Options, state domain.StudyState) []domain.Card {
	if len(cards) == 0 {
		return nil
	}
	n := min(orDefault(opts.BatchSize, DefaultBatchSize), len(cards))
	start := normalizeCursor(state.Cursor, len(cards))

	out := make([]domain.Card, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cards[(start+i)%len(cards)])
	}
	return out
}

// selectByDate returns the cards created on the calendar day of opts.Date
// in opts.Location. The day is read from opts.Date as given, so a date
// parsed at UTC midnight still names the same day in a zone west of UTC.
func selectByDate(cards []domain.Card, opts Options) []domain.Card {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	y, m, d := opts.Date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	var out []domain.Card
	for _, c := range cards {
		if !c.CreatedAt.Before(start) && c.CreatedAt.Before(end) {
			out = append(out, c)
		}
	}
	return out
}

func normalizeCursor(cursor, total int) int {
	if total <= 0 {
		return 0
	}
	cursor %= total
	if cursor < 0 {
		cursor += total
	}
	return cursor
}
