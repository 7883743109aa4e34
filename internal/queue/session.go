package queue

import "github.com/conorfennell/recall/internal/domain"

const (
	// RequeueGap is how many cards a lapsed card is pushed back by.
	RequeueGap = 3
	// MaxRequeues caps how often one card is shown again in a session.
	MaxRequeues = 3
)

// Session walks a working set and reinserts lapsed cards a few positions
// later so they come back before the session ends.
type Session struct {
	queue    []domain.Card
	pos      int
	requeues map[string]int
	original map[string]domain.Card
	order    []string
	studied  int
	total    int
}

// NewSession starts a walk over cards. The slice is copied.
func NewSession(cards []domain.Card) *Session {
	s := &Session{
		queue:    append([]domain.Card(nil), cards...),
		requeues: make(map[string]int),
		original: make(map[string]domain.Card, len(cards)),
		total:    len(cards),
	}
	for _, c := range cards {
		s.original[c.ID] = c
	}
	return s
}

// Current returns the card being shown, or false when the session is done.
func (s *Session) Current() (domain.Card, bool) {
	if s.pos >= len(s.queue) {
		return domain.Card{}, false
	}
	return s.queue[s.pos], true
}

// Advance moves past the current card. updated is the card after rating.
// When lapsed is true and the card has requeues left, updated is inserted
// RequeueGap positions further on (or at the end of the queue).
// It reports whether the card was requeued.
func (s *Session) Advance(updated domain.Card, lapsed bool) bool {
	if s.pos >= len(s.queue) {
		return false
	}
	cur := s.queue[s.pos]
	if _, seen := s.requeues[cur.ID]; !seen {
		s.order = append(s.order, cur.ID)
		s.requeues[cur.ID] = 0
	}
	s.studied++
	s.pos++

	if !lapsed || s.requeues[cur.ID] >= MaxRequeues {
		return false
	}
	s.requeues[cur.ID]++
	at := min(s.pos+RequeueGap, len(s.queue))
	s.queue = append(s.queue, domain.Card{})
	copy(s.queue[at+1:], s.queue[at:])
	s.queue[at] = updated
	return true
}

// Skip moves past the current card without recording a review.
func (s *Session) Skip() {
	if s.pos < len(s.queue) {
		s.pos++
	}
}

// Replace swaps the current card for a newer copy of it.
func (s *Session) Replace(card domain.Card) {
	if s.pos < len(s.queue) && s.queue[s.pos].ID == card.ID {
		s.queue[s.pos] = card
	}
}

// Done reports whether every queued card has been shown.
func (s *Session) Done() bool { return s.pos >= len(s.queue) }

// Remaining is the number of cards left, requeued ones included.
func (s *Session) Remaining() int { return len(s.queue) - s.pos }

// Studied counts ratings recorded, requeued repeats included.
func (s *Session) Studied() int { return s.studied }

// Upcoming returns the cards still to be shown, current card first.
func (s *Session) Upcoming() []domain.Card {
	return append([]domain.Card(nil), s.queue[s.pos:]...)
}

// Total is the size of the working set the session started with.
func (s *Session) Total() int { return s.total }

// Presented returns each distinct card that was rated, as it was when the
// session started, in the order first shown.
func (s *Session) Presented() []domain.Card {
	out := make([]domain.Card, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.original[id])
	}
	return out
}
