// Package main provides the FeelTune control CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/feeltune/internal/api/connect"
)

var (
	app     = kingpin.New("feeltunectl", "FeelTune control client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Control token (or set CONTROL_TOKEN env)").Envar("CONTROL_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	statusCmd     = app.Command("status", "Show auth, player and queue status")
	loginCmd      = app.Command("login", "Start Spotify authorization")
	logoutCmd     = app.Command("logout", "Erase the recorded credential")
	connectCmd    = app.Command("connect", "Load and connect the player")
	disconnectCmd = app.Command("disconnect", "Release the player")
	pauseCmd      = app.Command("pause", "Pause playback")
	resumeCmd     = app.Command("resume", "Resume playback")
	nextCmd       = app.Command("next", "Skip to the next track").Alias("skip")
	previousCmd   = app.Command("previous", "Return to the previous track").Alias("prev")

	seekCmd      = app.Command("seek", "Move the playhead")
	seekPosition = seekCmd.Arg("position", "Position, e.g. 1m30s").Required().Duration()

	volumeCmd     = app.Command("volume", "Set the volume")
	volumePercent = volumeCmd.Arg("percent", "Volume in percent (0-100)").Required().Int()

	playCmd = app.Command("play", "Play a track")
	playURI = playCmd.Arg("track", "Track URI, ID or open.spotify.com URL").Required().String()

	moodCmd        = app.Command("mood", "Submit a mood and queue a matching track")
	moodEmotion    = moodCmd.Arg("emotion", "Mood, e.g. happy, sad, calm").Required().String()
	moodIntensity  = moodCmd.Flag("intensity", "Mood intensity (0-1)").Default("0.5").Float64()
	moodSuggestion = moodCmd.Flag("suggestion", "Free-form suggestion").String()

	recommendCmd  = app.Command("recommend", "List recommendations for a mood")
	recommendMood = recommendCmd.Arg("mood", "Mood").Required().String()

	watchCmd = app.Command("watch", "Stream player and queue events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: control token is required (use --token or CONTROL_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == watchCmd.FullCommand() {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		exitOnError(watch(ctx, client))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case statusCmd.FullCommand():
		exitOnError(status(ctx, client))
	case loginCmd.FullCommand():
		authURL, err := client.Login(ctx)
		exitOnError(err)
		fmt.Println("Please visit the following URL to authorize FeelTune:")
		fmt.Println("")
		fmt.Println(authURL)
	case logoutCmd.FullCommand():
		printAck(client.Logout(ctx))
	case connectCmd.FullCommand():
		printAck(client.Connect(ctx))
	case disconnectCmd.FullCommand():
		printAck(client.Disconnect(ctx))
	case pauseCmd.FullCommand():
		printAck(client.Pause(ctx))
	case resumeCmd.FullCommand():
		printAck(client.Resume(ctx))
	case nextCmd.FullCommand():
		printAck(client.Next(ctx))
	case previousCmd.FullCommand():
		printAck(client.Previous(ctx))
	case seekCmd.FullCommand():
		printAck(client.Seek(ctx, seekPosition.Milliseconds()))
	case volumeCmd.FullCommand():
		printAck(client.SetVolume(ctx, *volumePercent))
	case playCmd.FullCommand():
		printAck(client.PlayTrack(ctx, *playURI))
	case moodCmd.FullCommand():
		exitOnError(submitMood(ctx, client))
	case recommendCmd.FullCommand():
		exitOnError(recommend(ctx, client))
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printAck(ack *apiconnect.Ack, err error) {
	exitOnError(err)
	fmt.Println(ack.Message)
}

func status(ctx context.Context, client *apiconnect.Client) error {
	s, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== FEELTUNE STATUS ===")
	fmt.Printf("Authorization: %s\n", s.AuthState)
	fmt.Printf("Player: %s\n", s.Connection)
	if s.DeviceID != "" {
		fmt.Printf("Device: %s\n", s.DeviceID)
	}
	fmt.Printf("Queue: %d pending (draining: %v)\n", s.QueueLength, s.Draining)
	if s.CurrentTrack != "" {
		fmt.Printf("Current Target: %s (%s)\n", s.CurrentTrack, s.CurrentMood)
	}

	if s.NowPlaying != nil {
		state := "Paused"
		if s.IsPlaying {
			state = "Playing"
		}
		fmt.Printf("\n%s:\n", state)
		printTrack(*s.NowPlaying)
		fmt.Printf("  Position: %s\n", (time.Duration(s.ProgressMs) * time.Millisecond).Truncate(time.Second))
	} else {
		fmt.Println("\nNo track currently playing")
	}
	fmt.Println()
	return nil
}

func submitMood(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.SubmitMood(ctx, &apiconnect.SubmitMoodRequest{
		Emotion:    *moodEmotion,
		Intensity:  *moodIntensity,
		Suggestion: *moodSuggestion,
	})
	if err != nil {
		return err
	}

	t := resp.Transition
	fmt.Printf("Queued %s transition (%dms, energy %.2f):\n", t.Type, t.DurationMs, t.ToEnergy)
	printTrack(resp.Track)
	return nil
}

func recommend(ctx context.Context, client *apiconnect.Client) error {
	tracks, err := client.Recommendations(ctx, *recommendMood)
	if err != nil {
		return err
	}

	fmt.Printf("Recommendations for %q (%d):\n", *recommendMood, len(tracks))
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		length := ""
		if t.DurationSeconds > 0 {
			length = (time.Duration(t.DurationSeconds) * time.Second).String()
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), t.Artist, t.Name, length, t.URI})
	}
	fmt.Println(renderTable([]string{"#", "Artist", "Name", "Length", "URI"}, rows, 0, 3))
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	fmt.Println("Watching events (Ctrl+C to stop)...")
	return client.WatchEvents(ctx, func(e *apiconnect.EventMessage) error {
		ts := time.Now().Format(time.TimeOnly)
		switch {
		case e.Source == "queue" && e.Transition != nil:
			line := fmt.Sprintf("[%s] queue %s: %s -> %s (%s)", ts, e.Type, e.Transition.FromTrack, e.Transition.ToTrack, e.Transition.Type)
			if e.Error != "" {
				line += ": " + e.Error
			}
			fmt.Println(line)
		case e.Source == "queue":
			fmt.Printf("[%s] queue %s\n", ts, e.Type)
		case e.Track != nil:
			fmt.Printf("[%s] player %s: %s - %s (paused: %v)\n", ts, e.Type, e.Track.Artist, e.Track.Name, e.Paused)
		default:
			fmt.Printf("[%s] player %s: %s %s\n", ts, e.Type, e.Connection, e.DeviceID)
		}
		return nil
	})
}

func printTrack(t apiconnect.TrackInfo) {
	fmt.Printf("  Name: %s\n", t.Name)
	fmt.Printf("  Artist: %s\n", t.Artist)
	fmt.Printf("  URI: %s\n", t.URI)
	if t.Mood != "" {
		fmt.Printf("  Mood: %s\n", t.Mood)
	}
	if t.DurationSeconds > 0 {
		fmt.Printf("  Duration: %s\n", time.Duration(t.DurationSeconds)*time.Second)
	}
}
