package connect

// Empty is the request or response of RPCs without a payload.
type Empty struct{}

// Ack acknowledges a control command.
type Ack struct {
	Message string `json:"message"`
}

// TrackInfo describes a track.
type TrackInfo struct {
	URI             string `json:"uri"`
	Name            string `json:"name"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	AlbumCoverURL   string `json:"album_cover_url,omitempty"`
	Mood            string `json:"mood,omitempty"`
}

// StatusResponse is the combined auth, player and queue status.
type StatusResponse struct {
	AuthState     string     `json:"auth_state"`
	Authenticated bool       `json:"authenticated"`
	Connection    string     `json:"connection"`
	DeviceID      string     `json:"device_id,omitempty"`
	QueueLength   int        `json:"queue_length"`
	Draining      bool       `json:"draining"`
	CurrentTrack  string     `json:"current_track,omitempty"`
	CurrentMood   string     `json:"current_mood,omitempty"`
	IsPlaying     bool       `json:"is_playing"`
	ProgressMs    int64      `json:"progress_ms,omitempty"`
	NowPlaying    *TrackInfo `json:"now_playing,omitempty"`
}

// LoginResponse carries the authorization page URL.
type LoginResponse struct {
	AuthURL string `json:"auth_url"`
}

// SeekRequest moves the playhead.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// SetVolumeRequest sets the device volume in percent.
type SetVolumeRequest struct {
	Percent int `json:"percent"`
}

// PlayTrackRequest plays a track URI on the bound device.
type PlayTrackRequest struct {
	URI string `json:"uri"`
}

// SubmitMoodRequest is a mood analysis result.
type SubmitMoodRequest struct {
	Emotion    string  `json:"emotion"`
	Intensity  float64 `json:"intensity"`
	Suggestion string  `json:"suggestion,omitempty"`
}

// TransitionInfo describes an enqueued transition.
type TransitionInfo struct {
	Type       string  `json:"type"`
	DurationMs int64   `json:"duration_ms"`
	FromTrack  string  `json:"from_track,omitempty"`
	FromMood   string  `json:"from_mood,omitempty"`
	ToTrack    string  `json:"to_track"`
	ToMood     string  `json:"to_mood"`
	ToEnergy   float64 `json:"to_energy"`
}

// SubmitMoodResponse reports the track picked for a mood.
type SubmitMoodResponse struct {
	Track      TrackInfo      `json:"track"`
	Transition TransitionInfo `json:"transition"`
}

// RecommendationsRequest asks for tracks matching a mood.
type RecommendationsRequest struct {
	Mood string `json:"mood"`
}

// RecommendationsResponse lists recommended tracks.
type RecommendationsResponse struct {
	Tracks []TrackInfo `json:"tracks"`
}

// EventMessage is a player or queue event streamed by WatchEvents.
type EventMessage struct {
	SequenceNo uint64          `json:"sequence_no"`
	Source     string          `json:"source"` // "player" or "queue"
	Type       string          `json:"type"`
	Connection string          `json:"connection,omitempty"`
	DeviceID   string          `json:"device_id,omitempty"`
	Paused     bool            `json:"paused,omitempty"`
	PositionMs int64           `json:"position_ms,omitempty"`
	Track      *TrackInfo      `json:"track,omitempty"`
	Transition *TransitionInfo `json:"transition,omitempty"`
	Error      string          `json:"error,omitempty"`
}
