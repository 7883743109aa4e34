// Package srs computes the next scheduling state of a flashcard from its
// current state and a recall rating. It performs no I/O and is safe for
// concurrent use.
package srs

import (
	"math"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

const (
	// MinEaseFactor is the floor applied after every ease decrement.
	MinEaseFactor = 1.3
	// RelapseDelay is how long after an Again rating the card is due again.
	RelapseDelay = 10 * time.Minute

	againEasePenalty = 0.20
	hardEasePenalty  = 0.15
	easyEaseBonus    = 0.15
	hardMultiplier   = 1.2
	easyMultiplier   = 1.3

	// Intervals used for a non-first rating of a card sitting at interval 0.
	fallbackHardDays = 1
	fallbackGoodDays = 1
	fallbackEasyDays = 4
)

// State holds the scheduling fields of a card read by Apply.
type State struct {
	Status       domain.Status
	IntervalDays float64
	EaseFactor   float64
	Repetitions  int
}

// StateOf extracts the scheduling state of a card.
func StateOf(c domain.Card) State {
	return State{
		Status:       c.Status,
		IntervalDays: c.IntervalDays,
		EaseFactor:   c.EaseFactor,
		Repetitions:  c.Repetitions,
	}
}

// Result is the updated scheduling state produced by Apply.
type Result struct {
	Status         domain.Status
	IntervalDays   float64
	EaseFactor     float64
	Repetitions    int
	DueAt          time.Time
	LastReviewedAt time.Time
}

// ApplyTo copies the result onto a card.
func (r Result) ApplyTo(c *domain.Card) {
	due, reviewed := r.DueAt, r.LastReviewedAt
	c.Status = r.Status
	c.IntervalDays = r.IntervalDays
	c.EaseFactor = r.EaseFactor
	c.Repetitions = r.Repetitions
	c.DueAt = &due
	c.LastReviewedAt = &reviewed
}

// Apply computes the state of a card after it is rated at now.
//
// A card still in the new status takes its first interval from cfg; a nil
// cfg or a zero offset falls back to the same defaults used for a lapsed
// card at interval 0 (Hard 1, Good 1, Easy 4 days). Every later rating
// grows the interval multiplicatively from the ease factor.
func Apply(s State, r Rating, cfg *Config, now time.Time) (Result, error) {
	if !r.IsValid() {
		return Result{}, invalidRating(r)
	}
	if s.Status == domain.StatusSuspended {
		return Result{}, ErrSuspended
	}

	ease := s.EaseFactor
	if ease == 0 {
		ease = domain.DefaultEaseFactor
	}
	ease = math.Max(MinEaseFactor, ease)
	ivl := math.Max(0, s.IntervalDays)
	first := s.Status == domain.StatusNew

	res := Result{
		Status:         domain.StatusReview,
		LastReviewedAt: now,
	}

	switch r {
	case Again:
		res.IntervalDays = 0
		res.EaseFactor = floorEase(ease - againEasePenalty)
		res.Repetitions = 0
		res.DueAt = now.Add(RelapseDelay)
		if cfg.variant() == VariantLearning {
			res.Status = domain.StatusLearning
		}
		return res, nil

	case Hard:
		if days, ok := cfg.offset(Hard); first && ok {
			res.IntervalDays = days
		} else if ivl == 0 {
			res.IntervalDays = fallbackHardDays
		} else {
			res.IntervalDays = math.Max(1, ivl*hardMultiplier)
		}
		res.EaseFactor = floorEase(ease - hardEasePenalty)

	case Good:
		if days, ok := cfg.offset(Good); first && ok {
			res.IntervalDays = days
		} else if ivl == 0 {
			res.IntervalDays = fallbackGoodDays
		} else {
			res.IntervalDays = ivl * ease
		}
		res.EaseFactor = round2(ease)

	case Easy:
		if days, ok := cfg.offset(Easy); first && ok {
			res.IntervalDays = days
		} else if ivl == 0 {
			res.IntervalDays = fallbackEasyDays
		} else {
			res.IntervalDays = ivl * ease * easyMultiplier
		}
		res.EaseFactor = round2(ease + easyEaseBonus)
	}

	res.Repetitions = s.Repetitions + 1
	res.DueAt = now.Add(days(res.IntervalDays))
	return res, nil
}

// floorEase rounds to two decimals and applies MinEaseFactor.
func floorEase(e float64) float64 {
	return math.Max(MinEaseFactor, round2(e))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func days(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}
