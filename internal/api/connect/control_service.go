package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/app/auth"
	"github.com/osa030/feeltune/internal/app/mood"
	"github.com/osa030/feeltune/internal/app/notification"
	"github.com/osa030/feeltune/internal/app/playback"
	"github.com/osa030/feeltune/internal/app/queue"
	"github.com/osa030/feeltune/internal/domain/player"
	"github.com/osa030/feeltune/internal/domain/track"
	"github.com/osa030/feeltune/internal/domain/transition"
)

// ServiceName is the fully-qualified control service name.
const ServiceName = "feeltune.v1.ControlService"

// Procedure paths.
const (
	GetStatusProcedure       = "/" + ServiceName + "/GetStatus"
	LoginProcedure           = "/" + ServiceName + "/Login"
	LogoutProcedure          = "/" + ServiceName + "/Logout"
	ConnectProcedure         = "/" + ServiceName + "/Connect"
	DisconnectProcedure      = "/" + ServiceName + "/Disconnect"
	PauseProcedure           = "/" + ServiceName + "/Pause"
	ResumeProcedure          = "/" + ServiceName + "/Resume"
	NextProcedure            = "/" + ServiceName + "/Next"
	PreviousProcedure        = "/" + ServiceName + "/Previous"
	SeekProcedure            = "/" + ServiceName + "/Seek"
	SetVolumeProcedure       = "/" + ServiceName + "/SetVolume"
	PlayTrackProcedure       = "/" + ServiceName + "/PlayTrack"
	SubmitMoodProcedure      = "/" + ServiceName + "/SubmitMood"
	RecommendationsProcedure = "/" + ServiceName + "/Recommendations"
	WatchEventsProcedure     = "/" + ServiceName + "/WatchEvents"
)

// eventBuffer is the per-stream subscription buffer.
const eventBuffer = 32

// statusTimeout bounds the remote lookup of the current playback in GetStatus.
const statusTimeout = 3 * time.Second

// Authenticator is the authorization flow seen by the control service.
type Authenticator interface {
	State() auth.State
	IsAuthenticated() bool
	Begin(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// Player is the playback controller seen by the control service.
type Player interface {
	Init(ctx context.Context) error
	Disconnect()
	State() playback.ConnectionState
	DeviceID() string
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMs int64) error
	SetVolume(ctx context.Context, percent int) error
	PlayTrack(ctx context.Context, uri string) error
	GetRecommendations(ctx context.Context, mood string) ([]track.Track, error)
	PlaybackState(ctx context.Context) (*player.Playback, error)
	Subscribe(buffer int) (string, <-chan notification.Notification[playback.Event])
	Unsubscribe(id string)
}

// TransitionQueue is the transition queue seen by the control service.
type TransitionQueue interface {
	Len() int
	Draining() bool
	Current() (transition.Endpoint, bool)
	Subscribe(buffer int) (string, <-chan notification.Notification[queue.Event])
	Unsubscribe(id string)
}

// Conductor turns mood analyses into queued transitions.
type Conductor interface {
	OnMood(ctx context.Context, a mood.Analysis) (*track.Track, *transition.Transition, error)
}

// ControlService implements the control RPCs.
type ControlService struct {
	auth      Authenticator
	player    Player
	queue     TransitionQueue
	conductor Conductor
}

// NewControlService creates a new ControlService.
func NewControlService(auth Authenticator, player Player, queue TransitionQueue, conductor Conductor) *ControlService {
	return &ControlService{
		auth:      auth,
		player:    player,
		queue:     queue,
		conductor: conductor,
	}
}

// NewControlServiceHandler builds the HTTP handler serving every control procedure.
// It returns the path prefix to mount the handler on.
func NewControlServiceHandler(s *ControlService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(LoginProcedure, connect.NewUnaryHandler(LoginProcedure, s.Login, opts...))
	mux.Handle(LogoutProcedure, connect.NewUnaryHandler(LogoutProcedure, s.Logout, opts...))
	mux.Handle(ConnectProcedure, connect.NewUnaryHandler(ConnectProcedure, s.Connect, opts...))
	mux.Handle(DisconnectProcedure, connect.NewUnaryHandler(DisconnectProcedure, s.Disconnect, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, s.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, s.Resume, opts...))
	mux.Handle(NextProcedure, connect.NewUnaryHandler(NextProcedure, s.Next, opts...))
	mux.Handle(PreviousProcedure, connect.NewUnaryHandler(PreviousProcedure, s.Previous, opts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, s.Seek, opts...))
	mux.Handle(SetVolumeProcedure, connect.NewUnaryHandler(SetVolumeProcedure, s.SetVolume, opts...))
	mux.Handle(PlayTrackProcedure, connect.NewUnaryHandler(PlayTrackProcedure, s.PlayTrack, opts...))
	mux.Handle(SubmitMoodProcedure, connect.NewUnaryHandler(SubmitMoodProcedure, s.SubmitMood, opts...))
	mux.Handle(RecommendationsProcedure, connect.NewUnaryHandler(RecommendationsProcedure, s.Recommendations, opts...))
	mux.Handle(WatchEventsProcedure, connect.NewServerStreamHandler(WatchEventsProcedure, s.WatchEvents, opts...))

	return "/" + ServiceName + "/", mux
}

// GetStatus returns the combined auth, player and queue status.
func (s *ControlService) GetStatus(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	resp := &StatusResponse{
		AuthState:     s.auth.State().String(),
		Authenticated: s.auth.IsAuthenticated(),
		Connection:    s.player.State().String(),
		DeviceID:      s.player.DeviceID(),
		QueueLength:   s.queue.Len(),
		Draining:      s.queue.Draining(),
	}
	if cur, ok := s.queue.Current(); ok {
		resp.CurrentTrack = cur.TrackID
		resp.CurrentMood = cur.Mood
	}

	if resp.Authenticated {
		lookupCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()
		pb, err := s.player.PlaybackState(lookupCtx)
		if err != nil {
			// Status stays useful without the remote view.
			zlog.Warn().Err(err).Msg("connect: failed to fetch playback state")
		} else if pb != nil {
			resp.IsPlaying = pb.IsPlaying
			resp.ProgressMs = pb.Progress.Milliseconds()
			resp.NowPlaying = toTrackInfo(pb.Track)
		}
	}

	return connect.NewResponse(resp), nil
}

// Login starts an authorization attempt and returns the authorization page URL.
func (s *ControlService) Login(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[LoginResponse], error) {
	authURL, err := s.auth.Begin(ctx)
	if authURL == "" && err != nil {
		return nil, toConnectError(err)
	}
	if err != nil {
		// The page could not be opened, the caller can still use the URL.
		zlog.Warn().Err(err).Msg("connect: authorization page not opened")
	}
	return connect.NewResponse(&LoginResponse{AuthURL: authURL}), nil
}

// Logout disconnects the player and erases every recorded credential.
func (s *ControlService) Logout(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	s.player.Disconnect()
	if err := s.auth.Logout(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Ack{Message: "Logged out"}), nil
}

// Connect loads and connects the player.
func (s *ControlService) Connect(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	if err := s.player.Init(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Ack{Message: "Player " + s.player.State().String()}), nil
}

// Disconnect releases the player.
func (s *ControlService) Disconnect(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	s.player.Disconnect()
	return connect.NewResponse(&Ack{Message: "Player disconnected"}), nil
}

// Pause pauses playback.
func (s *ControlService) Pause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	return ack(s.player.Pause(ctx), "Paused")
}

// Resume resumes playback.
func (s *ControlService) Resume(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	return ack(s.player.Resume(ctx), "Resumed")
}

// Next skips to the next track.
func (s *ControlService) Next(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	return ack(s.player.Next(ctx), "Skipped to next track")
}

// Previous returns to the previous track.
func (s *ControlService) Previous(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Ack], error) {
	return ack(s.player.Previous(ctx), "Returned to previous track")
}

// Seek moves the playhead.
func (s *ControlService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[Ack], error) {
	if req.Msg.PositionMs < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position must not be negative"))
	}
	return ack(s.player.Seek(ctx, req.Msg.PositionMs), "Seeked")
}

// SetVolume sets the device volume.
func (s *ControlService) SetVolume(
	ctx context.Context,
	req *connect.Request[SetVolumeRequest],
) (*connect.Response[Ack], error) {
	return ack(s.player.SetVolume(ctx, req.Msg.Percent), "Volume set")
}

// PlayTrack plays a track on the bound device.
func (s *ControlService) PlayTrack(
	ctx context.Context,
	req *connect.Request[PlayTrackRequest],
) (*connect.Response[Ack], error) {
	uri := track.URIFromID(req.Msg.URI)
	if uri == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("track uri is required"))
	}
	return ack(s.player.PlayTrack(ctx, uri), "Playing "+uri)
}

// SubmitMood picks a track for a mood analysis and queues the transition to it.
func (s *ControlService) SubmitMood(
	ctx context.Context,
	req *connect.Request[SubmitMoodRequest],
) (*connect.Response[SubmitMoodResponse], error) {
	picked, t, err := s.conductor.OnMood(ctx, mood.Analysis{
		Emotion:    req.Msg.Emotion,
		Intensity:  req.Msg.Intensity,
		Suggestion: req.Msg.Suggestion,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &SubmitMoodResponse{Transition: toTransitionInfo(*t)}
	if info := toTrackInfo(picked); info != nil {
		resp.Track = *info
	}
	return connect.NewResponse(resp), nil
}

// Recommendations returns tracks for a mood without queueing anything.
func (s *ControlService) Recommendations(
	ctx context.Context,
	req *connect.Request[RecommendationsRequest],
) (*connect.Response[RecommendationsResponse], error) {
	tracks, err := s.player.GetRecommendations(ctx, req.Msg.Mood)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &RecommendationsResponse{Tracks: make([]TrackInfo, 0, len(tracks))}
	for i := range tracks {
		resp.Tracks = append(resp.Tracks, *toTrackInfo(&tracks[i]))
	}
	return connect.NewResponse(resp), nil
}

// WatchEvents streams player and queue events until the client goes away.
func (s *ControlService) WatchEvents(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[EventMessage],
) error {
	playerID, playerEvents := s.player.Subscribe(eventBuffer)
	defer s.player.Unsubscribe(playerID)
	queueID, queueEvents := s.queue.Subscribe(eventBuffer)
	defer s.queue.Unsubscribe(queueID)

	// Initial snapshot so the client knows the connection state right away.
	if err := stream.Send(&EventMessage{
		Source:     "player",
		Type:       playback.EventConnectionChanged.String(),
		Connection: s.player.State().String(),
		DeviceID:   s.player.DeviceID(),
	}); err != nil {
		return err
	}

	for {
		var msg *EventMessage
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-playerEvents:
			if !ok {
				return nil
			}
			msg = fromPlayerEvent(n)
		case n, ok := <-queueEvents:
			if !ok {
				return nil
			}
			msg = fromQueueEvent(n)
		}
		if err := stream.Send(msg); err != nil {
			zlog.Debug().Err(err).Msg("connect: event stream closed")
			return err
		}
	}
}

func ack(err error, message string) (*connect.Response[Ack], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Ack{Message: message}), nil
}

func fromPlayerEvent(n notification.Notification[playback.Event]) *EventMessage {
	e := n.Payload
	msg := &EventMessage{
		SequenceNo: n.SequenceNo,
		Source:     "player",
		Type:       e.Type.String(),
		Connection: e.State.String(),
		DeviceID:   e.DeviceID,
	}
	if e.Player != nil {
		msg.Paused = e.Player.Paused
		msg.PositionMs = e.Player.Position.Milliseconds()
		msg.Track = toTrackInfo(e.Player.Track)
	}
	return msg
}

func fromQueueEvent(n notification.Notification[queue.Event]) *EventMessage {
	e := n.Payload
	msg := &EventMessage{
		SequenceNo: n.SequenceNo,
		Source:     "queue",
		Type:       e.Type.String(),
	}
	if e.Type != queue.EventIdle {
		info := toTransitionInfo(e.Transition)
		msg.Transition = &info
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

func toTrackInfo(t *track.Track) *TrackInfo {
	if t == nil {
		return nil
	}
	return &TrackInfo{
		URI:             t.URI,
		Name:            t.Name,
		Artist:          t.Artist,
		DurationSeconds: t.DurationSeconds,
		AlbumCoverURL:   t.AlbumCoverURL,
		Mood:            t.Mood,
	}
}

func toTransitionInfo(t transition.Transition) TransitionInfo {
	return TransitionInfo{
		Type:       string(t.Type),
		DurationMs: t.DurationMs(),
		FromTrack:  t.From.TrackID,
		FromMood:   t.From.Mood,
		ToTrack:    t.To.TrackID,
		ToMood:     t.To.Mood,
		ToEnergy:   t.To.Energy,
	}
}
