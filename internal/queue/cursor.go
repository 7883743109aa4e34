package queue

import (
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// AdvanceCursor moves the ordered-mode cursor past the cards actually
// presented, wrapping at total.
func AdvanceCursor(state domain.StudyState, presented, total int, now time.Time) domain.StudyState {
	state.Cursor = normalizeCursor(state.Cursor+presented, total)
	state.UpdatedAt = now
	return state
}

// AdvanceSequential moves the sequential start positions past the cards
// presented. presented holds the cards as they were before rating, and
// deck is the full card list used to detect the end of the deck. The
// review position wraps to zero once it passes the last card.
func AdvanceSequential(state domain.StudyState, presented, deck []domain.Card, now time.Time) domain.StudyState {
	last := -1
	for _, c := range deck {
		last = max(last, c.Position)
	}

	for _, c := range presented {
		if c.Status == domain.StatusNew {
			state.NewStartPos = max(state.NewStartPos, c.Position+1)
			continue
		}
		state.ReviewStartPos = c.Position + 1
	}
	if state.ReviewStartPos > last {
		state.ReviewStartPos = 0
	}
	state.UpdatedAt = now
	return state
}
