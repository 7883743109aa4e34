package queue

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// CramFilter narrows the cards of a cramming session.
type CramFilter string

const (
	CramAll     CramFilter = "all"
	CramWeak    CramFilter = "weak"
	CramDueSoon CramFilter = "due_soon"
)

const (
	DefaultCramMaxEase    = 2.0
	DefaultCramWithinDays = 3

	// CramRequeueGap is how many cards a missed card is pushed back by.
	CramRequeueGap = 2
)

// ErrUnknownFilter is returned for a cramming filter Select does not know.
var ErrUnknownFilter = errors.New("queue: unknown cramming filter")

// ParseCramFilter maps a filter name to a CramFilter. An empty name is
// CramAll.
func ParseCramFilter(s string) (CramFilter, error) {
	switch f := CramFilter(s); f {
	case "":
		return CramAll, nil
	case CramAll, CramWeak, CramDueSoon:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

// selectCramming keeps the cards matching opts.Filter in creation order.
// New cards always match, since they have no ease or due date yet.
func selectCramming(cards []domain.Card, opts Options, now time.Time) ([]domain.Card, error) {
	filter, err := ParseCramFilter(string(opts.Filter))
	if err != nil {
		return nil, err
	}

	var keep func(domain.Card) bool
	switch filter {
	case CramAll:
		return cards, nil
	case CramWeak:
		maxEase := opts.MaxEase
		if maxEase <= 0 {
			maxEase = DefaultCramMaxEase
		}
		keep = func(c domain.Card) bool { return c.EaseFactor <= maxEase }
	case CramDueSoon:
		cutoff := now.AddDate(0, 0, orDefault(opts.WithinDays, DefaultCramWithinDays))
		keep = func(c domain.Card) bool { return c.DueAt != nil && !c.DueAt.After(cutoff) }
	}

	out := make([]domain.Card, 0, len(cards))
	for _, c := range cards {
		if c.Status == domain.StatusNew || keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CramRating is the answer given to a card while cramming.
type CramRating int

const (
	Missed CramRating = iota
	GotIt
)

func (r CramRating) String() string {
	if r == GotIt {
		return "got_it"
	}
	return "missed"
}

// CramCard is what a cramming session knows about one card.
type CramCard struct {
	CardID   string `json:"card_id"`
	Question string `json:"question"`
	Attempts int    `json:"attempts"`
	Missed   int    `json:"missed"`
	// MasteredIn is the round the card was first got right, 0 until then.
	MasteredIn int `json:"mastered_in,omitempty"`
}

// Cram runs a cramming session in rounds. Each round shows every card not
// yet mastered. A missed card comes back CramRequeueGap cards later in the
// same round, and a card got right once is mastered and leaves the next
// round. The session ends when every card is mastered or the time limit
// passes. Cramming never changes scheduling state.
type Cram struct {
	cards      map[string]domain.Card
	all        []string
	queue      []string
	pos        int
	round      int
	roundTotal int
	stats      map[string]*CramCard
	shuffle    bool
	rng        *rand.Rand
	deadline   time.Time
}

// NewCram starts a cramming session over cards at start. opts.Shuffle
// randomizes each round with opts.Rand, and a positive opts.TimeLimit
// ends the session that long after start.
func NewCram(cards []domain.Card, opts Options, start time.Time) *Cram {
	c := &Cram{
		cards:   make(map[string]domain.Card, len(cards)),
		stats:   make(map[string]*CramCard, len(cards)),
		round:   1,
		shuffle: opts.Shuffle,
		rng:     opts.Rand,
	}
	for _, card := range cards {
		if _, dup := c.cards[card.ID]; dup {
			continue
		}
		c.cards[card.ID] = card
		c.all = append(c.all, card.ID)
		c.stats[card.ID] = &CramCard{CardID: card.ID, Question: card.Question}
	}
	if opts.TimeLimit > 0 {
		c.deadline = start.Add(opts.TimeLimit)
	}
	c.startRound(c.all)
	return c
}

func (c *Cram) startRound(ids []string) {
	c.queue = slices.Clone(ids)
	if c.shuffle {
		swap := func(i, j int) { c.queue[i], c.queue[j] = c.queue[j], c.queue[i] }
		if c.rng != nil {
			c.rng.Shuffle(len(c.queue), swap)
		} else {
			rand.Shuffle(len(c.queue), swap)
		}
	}
	c.pos = 0
	c.roundTotal = len(c.queue)
}

// nextRound starts a new round with the unmastered cards, if any.
func (c *Cram) nextRound() {
	var left []string
	for _, id := range c.all {
		if c.stats[id].MasteredIn == 0 {
			left = append(left, id)
		}
	}
	if len(left) == 0 {
		return
	}
	c.round++
	c.startRound(left)
}

// Current returns the card being shown, or false when the session is over.
func (c *Cram) Current(now time.Time) (domain.Card, bool) {
	if c.Done(now) || c.pos >= len(c.queue) {
		return domain.Card{}, false
	}
	return c.cards[c.queue[c.pos]], true
}

// Rate records r for the current card and moves on, starting the next
// round once this one is used up.
func (c *Cram) Rate(r CramRating) {
	if c.pos >= len(c.queue) {
		return
	}
	id := c.queue[c.pos]
	st := c.stats[id]
	st.Attempts++
	if r == Missed {
		st.Missed++
		at := min(c.pos+1+CramRequeueGap, len(c.queue))
		c.queue = slices.Insert(c.queue, at, id)
	} else if st.MasteredIn == 0 {
		st.MasteredIn = c.round
	}
	c.move()
}

// Skip moves past the current card without rating it. The card stays
// unmastered and comes back next round.
func (c *Cram) Skip() {
	if c.pos < len(c.queue) {
		c.move()
	}
}

func (c *Cram) move() {
	c.pos++
	if c.pos >= len(c.queue) {
		c.nextRound()
	}
}

// Replace swaps in a newer copy of a card.
func (c *Cram) Replace(card domain.Card) {
	if _, ok := c.cards[card.ID]; ok {
		c.cards[card.ID] = card
	}
}

// Done reports whether every card is mastered or time is up.
func (c *Cram) Done(now time.Time) bool {
	return c.AllMastered() || c.Expired(now)
}

// Expired reports whether the time limit has passed.
func (c *Cram) Expired(now time.Time) bool {
	return !c.deadline.IsZero() && !now.Before(c.deadline)
}

// TimeLeft returns the time until the limit, and false without a limit.
func (c *Cram) TimeLeft(now time.Time) (time.Duration, bool) {
	if c.deadline.IsZero() {
		return 0, false
	}
	return max(0, c.deadline.Sub(now)), true
}

// AllMastered reports whether every card was got right at least once.
func (c *Cram) AllMastered() bool {
	for _, id := range c.all {
		if c.stats[id].MasteredIn == 0 {
			return false
		}
	}
	return true
}

// Round is the current round, starting at 1.
func (c *Cram) Round() int { return c.round }

// RoundTotal is the number of cards the current round started with.
func (c *Cram) RoundTotal() int { return c.roundTotal }

// RemainingInRound counts the distinct unmastered cards still queued in
// this round.
func (c *Cram) RemainingInRound() int {
	seen := make(map[string]bool)
	for _, id := range c.queue[c.pos:] {
		if c.stats[id].MasteredIn == 0 {
			seen[id] = true
		}
	}
	return len(seen)
}

// Remaining is the number of queued entries left in this round.
func (c *Cram) Remaining() int { return len(c.queue) - c.pos }

// Upcoming returns the cards still queued in this round, current first.
func (c *Cram) Upcoming() []domain.Card {
	out := make([]domain.Card, 0, len(c.queue)-c.pos)
	for _, id := range c.queue[c.pos:] {
		out = append(out, c.cards[id])
	}
	return out
}

// Total is the number of distinct cards in the session.
func (c *Cram) Total() int { return len(c.all) }

// Attempts counts every rating given.
func (c *Cram) Attempts() int {
	n := 0
	for _, st := range c.stats {
		n += st.Attempts
	}
	return n
}

// Mastery is the percentage of cards mastered, rounded. An empty session
// is fully mastered.
func (c *Cram) Mastery() int {
	if len(c.all) == 0 {
		return 100
	}
	n := 0
	for _, id := range c.all {
		if c.stats[id].MasteredIn > 0 {
			n++
		}
	}
	return int(math.Round(float64(n) * 100 / float64(len(c.all))))
}

// Hardest returns up to n missed cards, most missed first.
func (c *Cram) Hardest(n int) []CramCard {
	var out []CramCard
	for _, id := range c.all {
		if st := c.stats[id]; st.Missed > 0 {
			out = append(out, *st)
		}
	}
	slices.SortStableFunc(out, func(a, b CramCard) int { return b.Missed - a.Missed })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Stats returns what the session knows about a card.
func (c *Cram) Stats(cardID string) (CramCard, bool) {
	st, ok := c.stats[cardID]
	if !ok {
		return CramCard{}, false
	}
	return *st, true
}
