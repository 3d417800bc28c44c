// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// uriPrefix is the Spotify URI prefix for tracks.
const uriPrefix = "spotify:track:"

// Track represents a playable track in the normalized shape handed to callers.
type Track struct {
	URI             string // Spotify URI (spotify:track:<id>)
	Name            string // Track name
	Artist          string // Primary artist name
	DurationSeconds int    // Rounded track length
	AlbumCoverURL   string // First album image, empty if none
	Mood            string // Mood the track was recommended for
}

// Duration returns the track length as a time.Duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}

// ID returns the bare Spotify track ID.
func (t Track) ID() string {
	return IDFromURI(t.URI)
}

// URIFromID builds a track URI from an ID, URI or open.spotify.com URL.
func URIFromID(input string) string {
	id := IDFromURI(input)
	if id == "" {
		return ""
	}
	return uriPrefix + id
}

// IDFromURI extracts the track ID from a Spotify track URI or URL.
// Anything else is assumed to already be an ID.
func IDFromURI(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, uriPrefix) {
		return strings.TrimPrefix(input, uriPrefix)
	}

	// https://open.spotify.com/track/<id> or https://open.spotify.com/intl-XX/track/<id>
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}

// DurationSeconds rounds a millisecond length to whole seconds.
func DurationSeconds(ms int) int {
	return int((time.Duration(ms)*time.Millisecond + 500*time.Millisecond) / time.Second)
}
