package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the control service.
type Client struct {
	getStatus       *connect.Client[Empty, StatusResponse]
	login           *connect.Client[Empty, LoginResponse]
	logout          *connect.Client[Empty, Ack]
	connectPlayer   *connect.Client[Empty, Ack]
	disconnect      *connect.Client[Empty, Ack]
	pause           *connect.Client[Empty, Ack]
	resume          *connect.Client[Empty, Ack]
	next            *connect.Client[Empty, Ack]
	previous        *connect.Client[Empty, Ack]
	seek            *connect.Client[SeekRequest, Ack]
	setVolume       *connect.Client[SetVolumeRequest, Ack]
	playTrack       *connect.Client[PlayTrackRequest, Ack]
	submitMood      *connect.Client[SubmitMoodRequest, SubmitMoodResponse]
	recommendations *connect.Client[RecommendationsRequest, RecommendationsResponse]
	watchEvents     *connect.Client[Empty, EventMessage]
}

// NewClient creates a control service client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		WithJSONCodec(),
		connect.WithInterceptors(NewControlTokenInterceptor(token)),
	}, opts...)

	return &Client{
		getStatus:       connect.NewClient[Empty, StatusResponse](httpClient, baseURL+GetStatusProcedure, opts...),
		login:           connect.NewClient[Empty, LoginResponse](httpClient, baseURL+LoginProcedure, opts...),
		logout:          connect.NewClient[Empty, Ack](httpClient, baseURL+LogoutProcedure, opts...),
		connectPlayer:   connect.NewClient[Empty, Ack](httpClient, baseURL+ConnectProcedure, opts...),
		disconnect:      connect.NewClient[Empty, Ack](httpClient, baseURL+DisconnectProcedure, opts...),
		pause:           connect.NewClient[Empty, Ack](httpClient, baseURL+PauseProcedure, opts...),
		resume:          connect.NewClient[Empty, Ack](httpClient, baseURL+ResumeProcedure, opts...),
		next:            connect.NewClient[Empty, Ack](httpClient, baseURL+NextProcedure, opts...),
		previous:        connect.NewClient[Empty, Ack](httpClient, baseURL+PreviousProcedure, opts...),
		seek:            connect.NewClient[SeekRequest, Ack](httpClient, baseURL+SeekProcedure, opts...),
		setVolume:       connect.NewClient[SetVolumeRequest, Ack](httpClient, baseURL+SetVolumeProcedure, opts...),
		playTrack:       connect.NewClient[PlayTrackRequest, Ack](httpClient, baseURL+PlayTrackProcedure, opts...),
		submitMood:      connect.NewClient[SubmitMoodRequest, SubmitMoodResponse](httpClient, baseURL+SubmitMoodProcedure, opts...),
		recommendations: connect.NewClient[RecommendationsRequest, RecommendationsResponse](httpClient, baseURL+RecommendationsProcedure, opts...),
		watchEvents:     connect.NewClient[Empty, EventMessage](httpClient, baseURL+WatchEventsProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// GetStatus returns the server status.
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return unary(ctx, c.getStatus, &Empty{})
}

// Login starts authorization and returns the authorization page URL.
func (c *Client) Login(ctx context.Context) (string, error) {
	resp, err := unary(ctx, c.login, &Empty{})
	if err != nil {
		return "", err
	}
	return resp.AuthURL, nil
}

// Logout erases the recorded credentials.
func (c *Client) Logout(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.logout, &Empty{})
}

// Connect loads and connects the player.
func (c *Client) Connect(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.connectPlayer, &Empty{})
}

// Disconnect releases the player.
func (c *Client) Disconnect(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.disconnect, &Empty{})
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.pause, &Empty{})
}

// Resume resumes playback.
func (c *Client) Resume(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.resume, &Empty{})
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.next, &Empty{})
}

// Previous returns to the previous track.
func (c *Client) Previous(ctx context.Context) (*Ack, error) {
	return unary(ctx, c.previous, &Empty{})
}

// Seek moves the playhead to positionMs.
func (c *Client) Seek(ctx context.Context, positionMs int64) (*Ack, error) {
	return unary(ctx, c.seek, &SeekRequest{PositionMs: positionMs})
}

// SetVolume sets the volume in percent.
func (c *Client) SetVolume(ctx context.Context, percent int) (*Ack, error) {
	return unary(ctx, c.setVolume, &SetVolumeRequest{Percent: percent})
}

// PlayTrack plays uri on the bound device.
func (c *Client) PlayTrack(ctx context.Context, uri string) (*Ack, error) {
	return unary(ctx, c.playTrack, &PlayTrackRequest{URI: uri})
}

// SubmitMood submits a mood analysis.
func (c *Client) SubmitMood(ctx context.Context, req *SubmitMoodRequest) (*SubmitMoodResponse, error) {
	return unary(ctx, c.submitMood, req)
}

// Recommendations lists tracks for mood.
func (c *Client) Recommendations(ctx context.Context, mood string) ([]TrackInfo, error) {
	resp, err := unary(ctx, c.recommendations, &RecommendationsRequest{Mood: mood})
	if err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// WatchEvents calls fn for every streamed event until ctx ends, the stream
// closes or fn returns an error.
func (c *Client) WatchEvents(ctx context.Context, fn func(*EventMessage) error) error {
	stream, err := c.watchEvents.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
