// Package mood turns mood changes into queued track transitions.
package mood

import "context"

// Analysis is the classifier's reading of a message.
type Analysis struct {
	Emotion    string  // Mood label, e.g. "happy"
	Intensity  float64 // 0..1
	Suggestion string  // Text to show the user
}

// Analyzer classifies a chat message.
type Analyzer interface {
	Analyze(ctx context.Context, message string) (Analysis, error)
}
