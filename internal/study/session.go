package study

import (
	stdsync "sync"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/srs"
)

// Session is one pass over a deck's working set. It is safe for
// concurrent use.
type Session struct {
	ID        string
	DeckID    string
	Mode      queue.Mode
	StartedAt time.Time

	mu       stdsync.Mutex
	now      func() time.Time
	cfg      srs.Config
	state    domain.StudyState
	deck     []domain.Card
	deckSize int
	walk     *queue.Session
	cram     *queue.Cram
	ended    bool
}

// Progress is a point-in-time view of a session.
type Progress struct {
	ID        string        `json:"id"`
	DeckID    string        `json:"deck_id"`
	Mode      queue.Mode    `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Card      *domain.Card  `json:"card"`
	Remaining int           `json:"remaining"`
	Studied   int           `json:"studied"`
	Total     int           `json:"total"`
	Done      bool          `json:"done"`
	Cram      *CramProgress `json:"cram,omitempty"`
}

// CramProgress is the round and mastery view of a cramming session.
type CramProgress struct {
	Round            int              `json:"round"`
	RoundTotal       int              `json:"round_total"`
	RemainingInRound int              `json:"remaining_in_round"`
	Mastery          int              `json:"mastery"`
	AllMastered      bool             `json:"all_mastered"`
	TimeUp           bool             `json:"time_up"`
	TimeLeftMS       *int64           `json:"time_left_ms,omitempty"`
	Hardest          []queue.CramCard `json:"hardest,omitempty"`
}

// hardestShown is how many missed cards a cramming summary lists.
const hardestShown = 5

// Current returns the card being shown.
func (s *Session) Current() (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Session) current() (domain.Card, bool) {
	if s.ended {
		return domain.Card{}, false
	}
	if s.cram != nil {
		return s.cram.Current(s.now())
	}
	return s.walk.Current()
}

func (s *Session) skip() {
	if s.cram != nil {
		s.cram.Skip()
		return
	}
	s.walk.Skip()
}

func (s *Session) replace(card domain.Card) {
	if s.cram != nil {
		s.cram.Replace(card)
		return
	}
	s.walk.Replace(card)
}

// Upcoming returns the cards still to be shown in this session. For a
// cramming session that is the rest of the current round.
func (s *Session) Upcoming() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	if s.cram != nil {
		if s.cram.Done(s.now()) {
			return nil
		}
		return s.cram.Upcoming()
	}
	return s.walk.Upcoming()
}

// Progress returns the current card and counters.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		ID:        s.ID,
		DeckID:    s.DeckID,
		Mode:      s.Mode,
		StartedAt: s.StartedAt,
	}
	if s.cram != nil {
		now := s.now()
		p.Remaining = s.cram.Remaining()
		p.Studied = s.cram.Attempts()
		p.Total = s.cram.Total()
		p.Done = s.ended || s.cram.Done(now)
		p.Cram = &CramProgress{
			Round:            s.cram.Round(),
			RoundTotal:       s.cram.RoundTotal(),
			RemainingInRound: s.cram.RemainingInRound(),
			Mastery:          s.cram.Mastery(),
			AllMastered:      s.cram.AllMastered(),
			TimeUp:           s.cram.Expired(now),
			Hardest:          s.cram.Hardest(hardestShown),
		}
		if left, ok := s.cram.TimeLeft(now); ok {
			ms := left.Milliseconds()
			p.Cram.TimeLeftMS = &ms
		}
	} else {
		p.Remaining = s.walk.Remaining()
		p.Studied = s.walk.Studied()
		p.Total = s.walk.Total()
		p.Done = s.ended || s.walk.Done()
	}
	if c, ok := s.current(); ok {
		p.Card = &c
	}
	return p
}
