// Package main provides the Spotify authorization tool.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/api/callback"
	"github.com/osa030/feeltune/internal/app/auth"
	"github.com/osa030/feeltune/internal/app/credstore"
	"github.com/osa030/feeltune/internal/infra/config"
	"github.com/osa030/feeltune/internal/infra/logger"
	"github.com/osa030/feeltune/internal/infra/store"
)

var (
	app        = kingpin.New("feeltune-auth", "Spotify authorization tool for FeelTune")
	configPath = app.Flag("config", "Path to config file").Default("config/feeltune.yaml").String()
	noBrowser  = app.Flag("no-browser", "Print the authorization URL instead of opening a browser").Bool()
	timeout    = app.Flag("timeout", "How long to wait for the authorization").Default("5m").Duration()
	logout     = app.Flag("logout", "Erase the recorded credential and exit").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Level: "info", Quiet: true}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Println(auth.UserMessage(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(store.Config{Backend: cfg.Store.Backend, Path: cfg.Store.Path})
	if err != nil {
		return errors.Wrap(err, "failed to open credential store")
	}
	defer kv.Close()

	creds := credstore.New(cfg.Spotify.ClientID, kv)
	creds.Load(ctx)

	nav := auth.BrowserNavigator
	if *noBrowser {
		nav = auth.NavigatorFunc(func(_ context.Context, authURL string) error {
			fmt.Println("Please visit the following URL to authorize FeelTune:")
			fmt.Println("")
			fmt.Println(authURL)
			fmt.Println("")
			return nil
		})
	}
	flow := auth.New(auth.Config{
		ClientID:      cfg.Spotify.ClientID,
		RedirectURL:   cfg.Spotify.RedirectURI,
		Scopes:        cfg.Spotify.Scopes,
		AuthURL:       cfg.Spotify.AuthURL,
		TokenURL:      cfg.Spotify.TokenURL,
		RefreshMargin: cfg.Spotify.RefreshMargin(),
	}, creds, auth.WithNavigator(nav))

	if *logout {
		if err := flow.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Recorded credential erased.")
		return nil
	}

	redirect, err := url.Parse(cfg.Spotify.RedirectURI)
	if err != nil {
		return errors.Wrap(err, "invalid redirect uri")
	}
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s (is the server running?)", redirect.Host)
	}

	result := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle(redirect.Path, callback.New(flow, cfg, callback.WithResultHook(func(err error) {
		select {
		case result <- err:
		default:
		}
	})))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("Callback server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Warn().Err(err).Msg("Failed to shutdown callback server")
		}
	}()

	if _, err := flow.Begin(ctx); err != nil {
		return err
	}
	fmt.Println("Waiting for authorization...")

	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	select {
	case err := <-result:
		if err != nil {
			return err
		}
	case <-waitCtx.Done():
		return errors.Wrap(waitCtx.Err(), "authorization not completed")
	}

	cred := creds.Snapshot()
	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Printf("Token expires at: %s\n", cred.ExpiresAt.Format(time.RFC3339))
	fmt.Printf("Credential stored in: %s (%s)\n", cfg.Store.Path, cfg.Store.Backend)
	return nil
}
