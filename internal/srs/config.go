package srs

import (
	"fmt"
	"math"
)

// MaxOffsetDays bounds every configured day offset.
const MaxOffsetDays = 365

// Variant selects the status a card carries after a lapse.
type Variant string

const (
	// VariantSimple keeps a lapsed card in review.
	VariantSimple Variant = "simple"
	// VariantLearning labels a lapsed card as learning until its next
	// successful rating.
	VariantLearning Variant = "learning"
)

// Config holds the per-deck day offsets used for a card's first rating.
// An offset of zero means "not configured" and the rating falls back to
// the multiplicative defaults.
type Config struct {
	AgainDays float64 `koanf:"again_days" json:"again_days" validate:"min=0,max=365"`
	HardDays  float64 `koanf:"hard_days" json:"hard_days" validate:"min=0,max=365"`
	GoodDays  float64 `koanf:"good_days" json:"good_days" validate:"min=0,max=365"`
	EasyDays  float64 `koanf:"easy_days" json:"easy_days" validate:"min=0,max=365"`
	Variant   Variant `koanf:"variant" json:"variant" validate:"omitempty,oneof=simple learning"`
}

// DefaultConfig returns the global defaults applied when a deck has no
// override.
func DefaultConfig() *Config {
	return &Config{
		AgainDays: 0,
		HardDays:  1,
		GoodDays:  3,
		EasyDays:  7,
		Variant:   VariantSimple,
	}
}

// Validate reports the first offset outside [0, MaxOffsetDays].
func (c *Config) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"again_days", c.AgainDays},
		{"hard_days", c.HardDays},
		{"good_days", c.GoodDays},
		{"easy_days", c.EasyDays},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || f.v < 0 || f.v > MaxOffsetDays {
			return fmt.Errorf("%w: %s=%v", ErrConfigOutOfRange, f.name, f.v)
		}
	}
	switch c.Variant {
	case "", VariantSimple, VariantLearning:
	default:
		return fmt.Errorf("%w: variant=%q", ErrConfigOutOfRange, c.Variant)
	}
	return nil
}

// Clamp returns a copy of c with every offset forced into [0, MaxOffsetDays]
// and an unknown variant replaced by VariantSimple.
func (c Config) Clamp() Config {
	c.AgainDays = clampOffset(c.AgainDays)
	c.HardDays = clampOffset(c.HardDays)
	c.GoodDays = clampOffset(c.GoodDays)
	c.EasyDays = clampOffset(c.EasyDays)
	if c.Variant != VariantLearning {
		c.Variant = VariantSimple
	}
	return c
}

// offset returns the configured first-rating interval for r.
func (c *Config) offset(r Rating) (float64, bool) {
	if c == nil {
		return 0, false
	}
	var days float64
	switch r {
	case Hard:
		days = c.HardDays
	case Good:
		days = c.GoodDays
	case Easy:
		days = c.EasyDays
	default:
		return 0, false
	}
	days = clampOffset(days)
	return days, days > 0
}

func (c *Config) variant() Variant {
	if c == nil || c.Variant == "" {
		return VariantSimple
	}
	return c.Variant
}

func clampOffset(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, MaxOffsetDays)
}
