package srs

import (
	"fmt"
	"math"
	"time"
)

// DefaultDayStartHour is the local hour at which a new study day begins.
const DefaultDayStartHour = 4

// Preview returns the result every rating would produce, keyed by rating.
// It is used to label answer buttons before the user picks one.
func Preview(s State, cfg *Config, now time.Time) (map[Rating]Result, error) {
	out := make(map[Rating]Result, len(Ratings))
	for _, r := range Ratings {
		res, err := Apply(s, r, cfg, now)
		if err != nil {
			return nil, err
		}
		out[r] = res
	}
	return out, nil
}

// FormatInterval renders an interval in days as a short label.
func FormatInterval(d float64) string {
	switch {
	case d <= 0:
		return "<10m"
	case d < 1:
		return fmt.Sprintf("%dh", int(math.Max(1, math.Round(d*24))))
	case d < 30:
		return fmt.Sprintf("%dd", int(math.Round(d)))
	case d < 365:
		return fmt.Sprintf("%dmo", int(math.Round(d/30)))
	default:
		return fmt.Sprintf("%.1fy", d/365)
	}
}

// DayStart returns the beginning of the study day containing now. A study
// day starts at hour o'clock local time, so with hour=4 a review at 2 AM
// still counts towards the previous day.
func DayStart(now time.Time, hour int) time.Time {
	shifted := now.Add(-time.Duration(hour) * time.Hour)
	y, m, d := shifted.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, now.Location())
}
