// Package transition provides the mood Transition value type.
package transition

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Type is the way a transition moves from one track to the next.
type Type string

const (
	TypeCrossfade Type = "crossfade" // Overlap the tracks for Duration
	TypeImmediate Type = "immediate" // Switch at once
	TypeGradual   Type = "gradual"   // Ease into the new mood over Duration
)

// ParseType parses a transition type name.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeCrossfade, TypeImmediate, TypeGradual:
		return t, nil
	default:
		return "", errors.Newf("unknown transition type: %q", s)
	}
}

// Endpoint is one side of a transition.
type Endpoint struct {
	TrackID string  // Track URI or ID
	Mood    string  // Mood label
	Energy  float64 // Target energy (0..1)
}

// Transition is a single queued move between two tracks.
type Transition struct {
	From     Endpoint
	To       Endpoint
	Duration time.Duration
	Type     Type
}

// Validate checks the transition can be executed.
func (t Transition) Validate() error {
	if t.Duration < 0 {
		return errors.Newf("transition duration must not be negative: %v", t.Duration)
	}
	if _, err := ParseType(string(t.Type)); err != nil {
		return err
	}
	return nil
}

// DurationMs returns the duration in whole milliseconds.
func (t Transition) DurationMs() int64 {
	return t.Duration.Milliseconds()
}
