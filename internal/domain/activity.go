package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Direction is one approach road of the intersection.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// Directions lists the four required directions in submission order.
var Directions = []Direction{North, South, East, West}

// ParseDirection converts a form field name into a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case North, South, East, West:
		return d, true
	}
	return "", false
}

// Timings maps each direction to a signal duration in seconds.
type Timings map[Direction]float64

// Validate requires exactly the four directions with finite non-negative values.
func (t Timings) Validate() error {
	var problems []string
	for _, d := range Directions {
		v, ok := t[d]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s missing", d))
		case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
			problems = append(problems, fmt.Sprintf("%s must be a non-negative number", d))
		}
	}
	for d := range t {
		switch d {
		case North, South, East, West:
		default:
			problems = append(problems, fmt.Sprintf("unexpected direction %q", d))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid timings: %s", strings.Join(problems, ", "))
	}
	return nil
}

// Equal reports whether both timings hold the same value for every direction.
func (t Timings) Equal(other Timings) bool {
	if len(t) != len(other) {
		return false
	}
	for d, v := range t {
		ov, ok := other[d]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (t Timings) Clone() Timings {
	out := make(Timings, len(t))
	for d, v := range t {
		out[d] = v
	}
	return out
}

// ActivityStatus is the review state of an activity.
type ActivityStatus string

const (
	StatusPending  ActivityStatus = "pending"
	StatusApproved ActivityStatus = "approved"
	StatusRejected ActivityStatus = "rejected"
)

// ParseActivityStatus converts a stored status string.
func ParseActivityStatus(s string) (ActivityStatus, error) {
	switch ActivityStatus(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return ActivityStatus(s), nil
	}
	return "", fmt.Errorf("unknown activity status %q", s)
}

// Terminal reports whether no further transition is allowed.
func (s ActivityStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether from -> to is a legal review transition.
// Only pending activities move, and only to approved or rejected.
func CanTransition(from, to ActivityStatus) bool {
	return from == StatusPending && to.Terminal()
}

// Activity is one submitted four-direction batch awaiting or past review.
type Activity struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Results   Timings        `json:"results"`
	Status    ActivityStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

// Result is the published outcome of an approved activity.
type Result struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ActivityID string    `json:"activityId"`
	Results    Timings   `json:"results"`
	Timestamp  time.Time `json:"timestamp"`
}
