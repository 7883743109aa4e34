package srs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRating is returned for a rating outside Again..Easy.
	ErrInvalidRating = errors.New("srs: invalid rating")
	// ErrSuspended is returned when a suspended card is passed to Apply.
	ErrSuspended = errors.New("srs: card is suspended")
	// ErrConfigOutOfRange is returned by Config.Validate for day offsets outside [0, 365].
	ErrConfigOutOfRange = errors.New("srs: config out of range")
)

func invalidRating(r Rating) error {
	return fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
}
