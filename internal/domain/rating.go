package domain

import (
	"errors"
	"math"
)

// Accepted rating bounds, inclusive.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// ErrRatingOutOfRange is returned by RatingEvent.Validate.
var ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")

// RatingEvent is a single submission. It is never persisted on its own.
type RatingEvent struct {
	UserEmail string
	CourseID  string
	Value     float64
}

// Validate rejects values outside [MinRating, MaxRating].
func (e RatingEvent) Validate() error {
	if math.IsNaN(e.Value) || e.Value < MinRating || e.Value > MaxRating {
		return ErrRatingOutOfRange
	}
	return nil
}

// RatingAggregate is the running mean and count stored on a course.
// Average is nil until the first rating is accepted.
type RatingAggregate struct {
	Average *float64
	Count   int64
}
