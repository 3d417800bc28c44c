package mood

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/feeltune/internal/app/queue"
	"github.com/osa030/feeltune/internal/app/recommend"
	"github.com/osa030/feeltune/internal/domain/track"
	"github.com/osa030/feeltune/internal/domain/transition"
)

// fakeSource returns a fixed candidate list per mood.
type fakeSource struct {
	byMood   map[string][]string
	err      error
	excluded []map[string]bool
}

func (s *fakeSource) GetCandidates(_ context.Context, mood string, count int, exclude map[string]bool) ([]recommend.Candidate, error) {
	s.excluded = append(s.excluded, exclude)
	if s.err != nil {
		return nil, s.err
	}
	var out []recommend.Candidate
	for _, uri := range s.byMood[mood] {
		if len(out) == count {
			break
		}
		out = append(out, recommend.Candidate{
			Track:       track.Track{URI: uri, Name: uri, Artist: "artist"},
			DisplayName: "fake",
		})
	}
	if len(out) == 0 {
		return nil, recommend.ErrNoCandidates
	}
	return out, nil
}

type recordingQueue struct {
	enqueued []transition.Transition
	err      error
}

func (q *recordingQueue) Enqueue(t transition.Transition) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, t)
	return nil
}

var testConfig = Config{
	Crossfade:          3 * time.Second,
	Gradual:            8 * time.Second,
	GradualEnergyDelta: 0.4,
	HistorySize:        10,
	CandidateCount:     3,
}

func newSource() *fakeSource {
	return &fakeSource{byMood: map[string][]string{
		"happy":     {"h1", "h2", "h3"},
		"energetic": {"e1", "e2"},
		"calm":      {"c1", "c2"},
		"sad":       {"s1"},
	}}
}

func TestConductor_TransitionTypes(t *testing.T) {
	tests := []struct {
		name         string
		moods        []string
		wantType     transition.Type
		wantDuration time.Duration
	}{
		{
			name:     "first track is immediate",
			moods:    []string{"happy"},
			wantType: transition.TypeImmediate,
		},
		{
			name:         "same mood crossfades",
			moods:        []string{"happy", "happy"},
			wantType:     transition.TypeCrossfade,
			wantDuration: 3 * time.Second,
		},
		{
			name:         "large energy jump is gradual",
			moods:        []string{"energetic", "calm"},
			wantType:     transition.TypeGradual,
			wantDuration: 8 * time.Second,
		},
		{
			name:         "small energy change crossfades",
			moods:        []string{"happy", "energetic"},
			wantType:     transition.TypeCrossfade,
			wantDuration: 3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &recordingQueue{}
			c := NewConductor(newSource(), q, testConfig)

			var last *transition.Transition
			for _, m := range tt.moods {
				_, tr, err := c.OnMood(context.Background(), Analysis{Emotion: m, Intensity: 0.5})
				require.NoError(t, err)
				last = tr
			}

			require.Len(t, q.enqueued, len(tt.moods))
			assert.Equal(t, tt.wantType, last.Type)
			assert.Equal(t, tt.wantDuration, last.Duration)
			assert.Equal(t, *last, q.enqueued[len(q.enqueued)-1])
		})
	}
}

func TestConductor_ChainsEndpoints(t *testing.T) {
	q := &recordingQueue{}
	c := NewConductor(newSource(), q, testConfig)

	first, _, err := c.OnMood(context.Background(), Analysis{Emotion: "Happy", Intensity: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "h1", first.URI)
	assert.Equal(t, "happy", first.Mood)

	_, tr, err := c.OnMood(context.Background(), Analysis{Emotion: "sad", Intensity: 0.5})
	require.NoError(t, err)
	assert.Equal(t, transition.Endpoint{TrackID: "h1", Mood: "happy", Energy: 0.7}, tr.From)
	assert.Equal(t, transition.Endpoint{TrackID: "s1", Mood: "sad", Energy: 0.3}, tr.To)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "s1", last.TrackID)
}

func TestConductor_SkipsRecentlyPlayed(t *testing.T) {
	src := newSource()
	c := NewConductor(src, &recordingQueue{}, testConfig)

	var picked []string
	for range 3 {
		tr, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy", Intensity: 0.5})
		require.NoError(t, err)
		picked = append(picked, tr.URI)
	}
	assert.Equal(t, []string{"h1", "h2", "h3"}, picked)
	assert.True(t, src.excluded[2]["h1"])
	assert.True(t, src.excluded[2]["h2"])

	_, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy", Intensity: 0.5})
	assert.True(t, errors.Is(err, recommend.ErrNoCandidates))
	assert.Equal(t, []string{"h1", "h2", "h3"}, c.History())
}

func TestConductor_HistoryIsBounded(t *testing.T) {
	cfg := testConfig
	cfg.HistorySize = 2
	c := NewConductor(newSource(), &recordingQueue{}, cfg)

	for range 3 {
		_, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy", Intensity: 0.5})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"h2", "h3"}, c.History())

	// h1 fell out of the history and can be picked again.
	tr, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy", Intensity: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "h1", tr.URI)
}

func TestConductor_Errors(t *testing.T) {
	t.Run("empty mood", func(t *testing.T) {
		c := NewConductor(newSource(), &recordingQueue{}, testConfig)
		_, _, err := c.OnMood(context.Background(), Analysis{Emotion: "  "})
		assert.True(t, errors.Is(err, ErrEmptyMood))
	})

	t.Run("source failure", func(t *testing.T) {
		src := newSource()
		src.err = errors.New("providers down")
		q := &recordingQueue{}
		c := NewConductor(src, q, testConfig)

		_, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy"})
		assert.Error(t, err)
		assert.Empty(t, q.enqueued)
	})

	t.Run("enqueue failure leaves state untouched", func(t *testing.T) {
		q := &recordingQueue{err: queue.ErrClosed}
		c := NewConductor(newSource(), q, testConfig)

		_, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy"})
		assert.True(t, errors.Is(err, queue.ErrClosed))
		_, ok := c.Last()
		assert.False(t, ok)
		assert.Empty(t, c.History())
	})
}

func TestEnergy(t *testing.T) {
	tests := []struct {
		mood      string
		intensity float64
		want      float64
	}{
		{"happy", 0.5, 0.7},
		{"happy", 0, 0.35},
		{"energetic", 1, 1},
		{"calm", 0.5, 0.2},
		{"unknown", 0.5, 0.5},
		{"sad", -3, 0.15},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Energy(tt.mood, tt.intensity), 1e-9, "%s@%v", tt.mood, tt.intensity)
	}
}

type recordingPlayer struct {
	mu    sync.Mutex
	plays []string
}

func (p *recordingPlayer) PlayTrack(_ context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, uri)
	return nil
}

func (p *recordingPlayer) Plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.plays...)
}

func TestConductor_ThroughQueue(t *testing.T) {
	player := &recordingPlayer{}
	q := queue.New(NewPlaybackRealizer(player))
	defer q.Close()

	cfg := testConfig
	cfg.Crossfade = 20 * time.Millisecond
	cfg.Gradual = 20 * time.Millisecond
	c := NewConductor(newSource(), q, cfg)

	for _, m := range []string{"happy", "calm", "calm"} {
		_, _, err := c.OnMood(context.Background(), Analysis{Emotion: m, Intensity: 0.5})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))

	assert.Equal(t, []string{"h1", "c1", "c2"}, player.Plays())
	assert.Equal(t, "c2", q.CurrentTrack())
}

func TestPlaybackRealizer_RequiresTarget(t *testing.T) {
	r := NewPlaybackRealizer(&recordingPlayer{})
	assert.Error(t, r.Realize(context.Background(), transition.Transition{Type: transition.TypeImmediate}))
}

func TestConductor_RecentTracks(t *testing.T) {
	src := newSource()
	c := NewConductor(src, &recordingQueue{}, testConfig)

	for _, m := range []string{"happy", "sad"} {
		_, _, err := c.OnMood(context.Background(), Analysis{Emotion: m, Intensity: 0.5})
		require.NoError(t, err)
	}

	recent := c.RecentTracks()
	require.Len(t, recent, 2)
	assert.Equal(t, "h1", recent[0].URI)
	assert.Equal(t, "happy", recent[0].Mood)
	assert.Equal(t, "s1", recent[1].URI)

	recent[0].URI = "mutated"
	assert.Equal(t, []string{"h1", "s1"}, c.History())
}

// lockingSource reads the conductor's recent tracks while OnMood is running,
// the way candidate filters do.
type lockingSource struct {
	*fakeSource
	conductor *Conductor
	seen      []int
}

func (s *lockingSource) GetCandidates(ctx context.Context, mood string, count int, exclude map[string]bool) ([]recommend.Candidate, error) {
	s.seen = append(s.seen, len(s.conductor.RecentTracks()))
	return s.fakeSource.GetCandidates(ctx, mood, count, exclude)
}

func TestConductor_RecentTracksDuringMoodChange(t *testing.T) {
	src := &lockingSource{fakeSource: newSource()}
	c := NewConductor(src, &recordingQueue{}, testConfig)
	src.conductor = c

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 2 {
			_, _, err := c.OnMood(context.Background(), Analysis{Emotion: "happy", Intensity: 0.5})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnMood blocked on its own history")
	}
	assert.Equal(t, []int{0, 1}, src.seen)
}
