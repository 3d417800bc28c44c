package playback

import (
	"maps"
	"slices"
	"strings"
)

// MoodNeutral is used for moods the table does not know.
const MoodNeutral = "neutral"

// MoodProfile holds the audio feature targets for a mood.
type MoodProfile struct {
	Valence float64
	Energy  float64
	Genres  []string // Seed genres, the Web API requires at least one seed
}

var moodProfiles = map[string]MoodProfile{
	"happy":     {Valence: 0.8, Energy: 0.7, Genres: []string{"pop", "dance"}},
	"sad":       {Valence: 0.2, Energy: 0.3, Genres: []string{"sad", "acoustic"}},
	"energetic": {Valence: 0.6, Energy: 0.9, Genres: []string{"work-out", "edm"}},
	"calm":      {Valence: 0.5, Energy: 0.2, Genres: []string{"chill", "ambient"}},
	"angry":     {Valence: 0.3, Energy: 0.8, Genres: []string{"metal", "rock"}},
	MoodNeutral: {Valence: 0.5, Energy: 0.5, Genres: []string{"indie", "pop"}},
}

// NormalizeMood lowercases and trims a mood name.
func NormalizeMood(mood string) string {
	return strings.ToLower(strings.TrimSpace(mood))
}

// Profile returns the profile for mood. Unknown moods get the neutral profile.
func Profile(mood string) MoodProfile {
	p, ok := moodProfiles[NormalizeMood(mood)]
	if !ok {
		p = moodProfiles[MoodNeutral]
	}
	p.Genres = append([]string(nil), p.Genres...)
	return p
}

// KnownMood reports whether mood has its own profile.
func KnownMood(mood string) bool {
	_, ok := moodProfiles[NormalizeMood(mood)]
	return ok
}

// Moods returns the moods that have their own profile, sorted.
func Moods() []string {
	return slices.Sorted(maps.Keys(moodProfiles))
}
