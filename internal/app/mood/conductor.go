package mood

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/app/playback"
	"github.com/osa030/feeltune/internal/app/recommend"
	"github.com/osa030/feeltune/internal/domain/track"
	"github.com/osa030/feeltune/internal/domain/transition"
)

// ErrEmptyMood is returned for an analysis without an emotion.
var ErrEmptyMood = errors.New("mood is empty")

// CandidateSource returns track candidates for a mood.
type CandidateSource interface {
	GetCandidates(ctx context.Context, mood string, count int, exclude map[string]bool) ([]recommend.Candidate, error)
}

// Enqueuer accepts transitions for execution.
type Enqueuer interface {
	Enqueue(t transition.Transition) error
}

// Config holds conductor configuration.
type Config struct {
	Crossfade          time.Duration // Duration of crossfade transitions
	Gradual            time.Duration // Duration of gradual transitions
	GradualEnergyDelta float64       // Energy jump that makes a transition gradual
	HistorySize        int           // Recently played tracks that are not picked again
	CandidateCount     int           // Candidates requested per mood change
}

// Conductor picks the next track for a mood and enqueues the transition to it.
type Conductor struct {
	mu   sync.Mutex
	last *transition.Endpoint // Last enqueued target

	// Guarded separately so candidate filters can read it during OnMood.
	historyMu sync.RWMutex
	history   []track.Track // Recently enqueued tracks, oldest first

	source CandidateSource
	queue  Enqueuer
	config Config
}

// NewConductor creates a new conductor.
func NewConductor(source CandidateSource, queue Enqueuer, config Config) *Conductor {
	if config.CandidateCount <= 0 {
		config.CandidateCount = playback.RecommendationLimit
	}
	return &Conductor{
		source: source,
		queue:  queue,
		config: config,
	}
}

// OnMood fetches candidates for the analysed mood, picks one that was not
// played recently and enqueues the transition to it.
func (c *Conductor) OnMood(ctx context.Context, a Analysis) (*track.Track, *transition.Transition, error) {
	mood := playback.NormalizeMood(a.Emotion)
	if mood == "" {
		return nil, nil, ErrEmptyMood
	}

	// Serializes mood changes so each transition starts where the previous one ended.
	c.mu.Lock()
	defer c.mu.Unlock()

	exclude := make(map[string]bool)
	for _, uri := range c.History() {
		exclude[uri] = true
	}

	candidates, err := c.source.GetCandidates(ctx, mood, c.config.CandidateCount, exclude)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "no track for mood %q", mood)
	}

	var picked *recommend.Candidate
	for i := range candidates {
		if !exclude[candidates[i].Track.URI] {
			picked = &candidates[i]
			break
		}
	}
	if picked == nil {
		return nil, nil, errors.Wrapf(recommend.ErrNoCandidates, "every candidate for mood %q was played recently", mood)
	}

	to := transition.Endpoint{
		TrackID: picked.Track.URI,
		Mood:    mood,
		Energy:  Energy(mood, a.Intensity),
	}
	t := c.plan(to)

	if err := c.queue.Enqueue(t); err != nil {
		return nil, nil, errors.Wrap(err, "failed to enqueue transition")
	}

	result := picked.Track
	if result.Mood == "" {
		result.Mood = mood
	}
	c.last = &to
	c.remember(result)

	zlog.Info().Msgf("mood: %s (%.2f) -> %s by %s via %s, %s transition",
		mood, a.Intensity, result.Name, result.Artist, picked.DisplayName, t.Type)
	return &result, &t, nil
}

// plan chooses the transition type from the previous target to "to".
func (c *Conductor) plan(to transition.Endpoint) transition.Transition {
	if c.last == nil {
		return transition.Transition{To: to, Type: transition.TypeImmediate}
	}

	t := transition.Transition{From: *c.last, To: to}
	switch {
	case c.last.Mood == to.Mood:
		t.Type = transition.TypeCrossfade
		t.Duration = c.config.Crossfade
	case math.Abs(to.Energy-c.last.Energy) >= c.config.GradualEnergyDelta:
		t.Type = transition.TypeGradual
		t.Duration = c.config.Gradual
	default:
		t.Type = transition.TypeCrossfade
		t.Duration = c.config.Crossfade
	}
	return t
}

func (c *Conductor) remember(t track.Track) {
	if c.config.HistorySize <= 0 {
		return
	}
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.history = append(c.history, t)
	if over := len(c.history) - c.config.HistorySize; over > 0 {
		c.history = c.history[over:]
	}
}

// Last returns the last enqueued target, if any.
func (c *Conductor) Last() (transition.Endpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return transition.Endpoint{}, false
	}
	return *c.last, true
}

// History returns the recently enqueued track URIs, oldest first.
func (c *Conductor) History() []string {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	uris := make([]string, 0, len(c.history))
	for _, t := range c.history {
		uris = append(uris, t.URI)
	}
	return uris
}

// RecentTracks returns the recently enqueued tracks, oldest first.
// It does not wait for a mood change in progress.
func (c *Conductor) RecentTracks() []track.Track {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	return append([]track.Track(nil), c.history...)
}

// Energy returns the target energy for mood at intensity. An intensity of 0.5
// yields the mood table's energy; the result is clamped to 0..1.
func Energy(mood string, intensity float64) float64 {
	intensity = math.Max(0, math.Min(1, intensity))
	e := playback.Profile(mood).Energy * (0.5 + intensity)
	return math.Max(0, math.Min(1, e))
}
