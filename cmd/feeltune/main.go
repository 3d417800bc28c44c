// Package main provides the FeelTune server entry point.
package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/feeltune/internal/api/callback"
	apiconnect "github.com/osa030/feeltune/internal/api/connect"
	"github.com/osa030/feeltune/internal/app/auth"
	"github.com/osa030/feeltune/internal/app/credstore"
	"github.com/osa030/feeltune/internal/app/filter"
	"github.com/osa030/feeltune/internal/app/mood"
	"github.com/osa030/feeltune/internal/app/playback"
	"github.com/osa030/feeltune/internal/app/queue"
	"github.com/osa030/feeltune/internal/app/recommend"
	"github.com/osa030/feeltune/internal/domain/track"
	"github.com/osa030/feeltune/internal/infra/config"
	"github.com/osa030/feeltune/internal/infra/logger"
	"github.com/osa030/feeltune/internal/infra/spotify"
	"github.com/osa030/feeltune/internal/infra/store"
)

var (
	app        = kingpin.New("feeltune", "Mood-driven Spotify playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/feeltune.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	noBrowser  = app.Flag("no-browser", "Log the authorization URL instead of opening a browser").Bool()

	// list-moods command
	listMoodsCmd = app.Command("list-moods", "List known moods and their audio feature targets and exit")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available candidate filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listMoodsCmd.FullCommand() {
		printMoods()
		return
	}
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{Level: "info", File: *logfile}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load config")
	}

	if err := run(cfg); err != nil {
		zlog.Fatal().Err(err).Msg("Server error")
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := store.Open(store.Config{Backend: cfg.Store.Backend, Path: cfg.Store.Path})
	if err != nil {
		return errors.Wrap(err, "failed to open credential store")
	}
	defer kv.Close()

	creds := credstore.New(cfg.Spotify.ClientID, kv)
	creds.Load(ctx)

	nav := auth.BrowserNavigator
	if *noBrowser {
		nav = auth.LogNavigator
	}
	flow := auth.New(auth.Config{
		ClientID:      cfg.Spotify.ClientID,
		RedirectURL:   cfg.Spotify.RedirectURI,
		Scopes:        cfg.Spotify.Scopes,
		AuthURL:       cfg.Spotify.AuthURL,
		TokenURL:      cfg.Spotify.TokenURL,
		RefreshMargin: cfg.Spotify.RefreshMargin(),
	}, creds, auth.WithNavigator(nav))
	zlog.Info().Msgf("Authorization state: %s", flow.State())

	spotifyCfg := spotify.Config{
		BaseURL:           cfg.Spotify.APIBaseURL,
		Market:            cfg.Spotify.Market,
		RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		Burst:             cfg.Spotify.Burst,
		Timeout:           cfg.Spotify.Timeout(),
	}
	limiter := spotify.NewLimiter(spotifyCfg)
	api := spotify.New(flow.TokenSource(ctx), limiter, spotifyCfg)
	loader := spotify.NewLoader(spotifyCfg, spotify.PlayerConfig{
		DeviceName:   cfg.Spotify.DeviceName,
		PollInterval: cfg.Spotify.PollInterval(),
	}, limiter)

	controller := playback.NewController(flow, creds, loader, api)
	defer controller.Close()

	transitions := queue.New(mood.NewPlaybackRealizer(controller))
	defer transitions.Close()

	chain, err := recommend.NewChainFromConfig(cfg.Recommend, recommend.Deps{
		Recommender: controller,
		Resolver:    api,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create recommendation providers")
	}
	zlog.Info().Msgf("Recommendation providers: %d", chain.Len())

	// Filters read the conductor's history, which only exists once the chain does.
	var conductor *mood.Conductor
	filters, err := filter.NewChainFromConfig(cfg.Filters, func() []track.Track {
		return conductor.RecentTracks()
	})
	if err != nil {
		return errors.Wrap(err, "failed to create candidate filters")
	}
	chain.SetFilters(filters)
	zlog.Info().Msgf("Candidate filters: %d", filters.Len())

	conductor = mood.NewConductor(chain, transitions, mood.Config{
		Crossfade:          cfg.Mood.Crossfade(),
		Gradual:            cfg.Mood.Gradual(),
		GradualEnergyDelta: cfg.Mood.GradualEnergyDelta,
		HistorySize:        cfg.Mood.HistorySize,
		CandidateCount:     cfg.Recommend.CandidateCount,
	})

	mux := http.NewServeMux()

	callbackPath := callback.Path
	if u, err := parseCallbackPath(cfg.Spotify.RedirectURI); err == nil {
		callbackPath = u
	}
	mux.Handle(callbackPath, callback.New(flow, cfg, callback.WithResultHook(func(err error) {
		if err != nil {
			return
		}
		// The request context ends with the response.
		go initPlayer(ctx, controller)
	})))

	svc := apiconnect.NewControlService(flow, controller, transitions, conductor)
	path, handler := apiconnect.NewControlServiceHandler(svc,
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Server.ControlToken)),
	)
	mux.Handle(path, handler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info().Msgf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("Server failed")
			cancel()
		}
	}()

	// Bring the player up right away when a credential is already recorded.
	if creds.HasToken() {
		go initPlayer(ctx, controller)
	} else {
		zlog.Info().Msg("No credential recorded, call Login or Connect to authorize")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop the queue and the player first so that event streams end.
	transitions.Close()
	controller.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")
	return nil
}

func initPlayer(ctx context.Context, controller *playback.Controller) {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := controller.Init(initCtx); err != nil {
		zlog.Warn().Err(err).Msg("Player initialization failed")
	}
}

// printFilters prints the available candidate filters.
func printFilters() {
	factories := filter.Available(nil)
	fmt.Println("Available Filters:")
	for _, name := range slices.Sorted(maps.Keys(factories)) {
		f := factories[name]()
		fmt.Printf("  %s\n", f.Name())
		fmt.Printf("    Description: %s\n", f.Description())
		fmt.Printf("    Return codes: %s\n", strings.Join(f.ReturnCodes(), ", "))
	}
}

// printMoods prints the mood table.
func printMoods() {
	fmt.Println("Known Moods:")
	for _, name := range playback.Moods() {
		p := playback.Profile(name)
		fmt.Printf("  %-10s valence=%.1f energy=%.1f genres=%s\n", name, p.Valence, p.Energy, strings.Join(p.Genres, ","))
	}
}
