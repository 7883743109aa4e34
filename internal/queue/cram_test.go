package queue

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

func cramCards(n int) []domain.Card {
	cards := make([]domain.Card, n)
	for i := range cards {
		cards[i] = card(i, domain.StatusReview, nil)
	}
	return cards
}

func currentID(t *testing.T, c *Cram) string {
	t.Helper()
	card, ok := c.Current(now)
	if !ok {
		t.Fatal("Expected a current card, but the session is over")
	}
	return card.ID
}

func TestCramMissedCardComesBackInRound(t *testing.T) {
	c := NewCram(cramCards(4), Options{}, now)

	c.Rate(Missed) // c00 goes back two cards later
	var seen []string
	for !c.Done(now) && c.Round() == 1 {
		seen = append(seen, currentID(t, c))
		c.Rate(GotIt)
	}

	want := []string{"c01", "c02", "c00", "c03"}
	if len(seen) != len(want) {
		t.Fatalf("Expected %v, but got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("Expected %v, but got %v", want, seen)
		}
	}
	if !c.AllMastered() || c.Mastery() != 100 {
		t.Errorf("Expected every card mastered, but mastery is %d%%", c.Mastery())
	}
	if c.Attempts() != 5 {
		t.Errorf("Expected 5 attempts, but got %d", c.Attempts())
	}
}

func TestCramRoundTransition(t *testing.T) {
	c := NewCram(cramCards(3), Options{}, now)

	// Round 1: c00 got right, c01 skipped, c02 missed twice then right.
	c.Rate(GotIt)
	c.Skip()
	c.Rate(Missed)
	if got := currentID(t, c); got != "c02" {
		t.Fatalf("Expected the missed card to come back at the end of the round, but got %s", got)
	}
	c.Rate(Missed)
	c.Rate(GotIt)

	if c.Round() != 2 {
		t.Fatalf("Expected round 2, but got %d", c.Round())
	}
	if c.RoundTotal() != 1 || c.RemainingInRound() != 1 {
		t.Errorf("Expected one card in round 2, but got total %d remaining %d", c.RoundTotal(), c.RemainingInRound())
	}
	if got := currentID(t, c); got != "c01" {
		t.Errorf("Expected the unmastered card in round 2, but got %s", got)
	}
	if c.Mastery() != 67 {
		t.Errorf("Expected 67%% mastery, but got %d", c.Mastery())
	}

	c.Rate(GotIt)
	if !c.Done(now) {
		t.Error("Expected the session to be done once every card is mastered")
	}
	if _, ok := c.Current(now); ok {
		t.Error("Expected no current card after the session is done")
	}
	st, _ := c.Stats("c01")
	if st.MasteredIn != 2 {
		t.Errorf("Expected c01 mastered in round 2, but got %d", st.MasteredIn)
	}

	hardest := c.Hardest(5)
	if len(hardest) != 1 || hardest[0].CardID != "c02" || hardest[0].Missed != 2 {
		t.Errorf("Expected c02 missed twice as the hardest card, but got %+v", hardest)
	}
}

func TestCramTimeLimit(t *testing.T) {
	c := NewCram(cramCards(2), Options{TimeLimit: 10 * time.Minute}, now)

	left, ok := c.TimeLeft(now.Add(4 * time.Minute))
	if !ok || left != 6*time.Minute {
		t.Errorf("Expected 6m left, but got %v (%v)", left, ok)
	}
	if c.Done(now.Add(9 * time.Minute)) {
		t.Error("Expected the session to run before the limit")
	}
	if !c.Done(now.Add(10 * time.Minute)) {
		t.Error("Expected the session to end at the limit")
	}
	if _, ok := c.Current(now.Add(time.Hour)); ok {
		t.Error("Expected no current card after the limit")
	}

	unlimited := NewCram(cramCards(1), Options{}, now)
	if _, ok := unlimited.TimeLeft(now); ok {
		t.Error("Expected no time left without a limit")
	}
}

func TestCramShuffle(t *testing.T) {
	opts := Options{Shuffle: true, Rand: rand.New(rand.NewPCG(1, 2))}
	a := NewCram(cramCards(10), opts, now)
	opts.Rand = rand.New(rand.NewPCG(1, 2))
	b := NewCram(cramCards(10), opts, now)

	ua, ub := ids(a.Upcoming()), ids(b.Upcoming())
	if len(ua) != 10 {
		t.Fatalf("Expected 10 cards, but got %d", len(ua))
	}
	for i := range ua {
		if ua[i] != ub[i] {
			t.Fatalf("Expected the same seed to give the same order, but got %v and %v", ua, ub)
		}
	}
}

func TestCramEmpty(t *testing.T) {
	c := NewCram(nil, Options{}, now)
	if !c.Done(now) || c.Mastery() != 100 || c.Total() != 0 {
		t.Error("Expected an empty cramming session to be done and fully mastered")
	}
}
