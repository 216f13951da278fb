package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/opsdeck/console-auth/admin"
	"github.com/opsdeck/console-auth/auth"
	"github.com/opsdeck/console-auth/internal/config"
	"github.com/opsdeck/console-auth/provider"
	"github.com/opsdeck/console-auth/server"
	"github.com/opsdeck/console-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load() // absent .env is fine, env vars still apply

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	idp, err := provider.New(ctx, provider.Config{
		IssuerURL:      c.GetIssuerURL(),
		ClientID:       c.GetClientID(),
		ClientSecret:   c.GetClientSecret(),
		RedirectURL:    c.GetRedirectURL(),
		RequestTimeout: c.GetRefreshTimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "connecting to identity provider")
	}

	sessions, err := session.NewManager(session.NewInMemoryRepo(), idp,
		session.WithDebounceWindow(c.GetDebounceWindow()),
		session.WithRetention(c.GetSessionCookieTTL()),
	)
	if err != nil {
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions, c.GetSessionSweepInterval())

	authService, err := auth.NewService(idp, sessions,
		auth.Redirects{
			LoginURL:      c.GetLoginURL(),
			PostLogoutURL: c.GetPostLogoutURL(),
		},
		auth.RetryPolicy{
			MaxRetries: c.GetSignInMaxRetries(),
			RetryDelay: c.GetSignInRetryDelay(),
			Timeout:    c.GetSignInTimeout(),
		},
	)
	if err != nil {
		return err
	}

	adminSDK, err := buildAdminSDK(c, idp)
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Deps{
		Flow:     idp,
		Sessions: sessions,
		Auth:     authService,
		Admin:    adminSDK,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildAdminSDK wires the admin API client when admin credentials are
// configured; without them the console runs without user management.
func buildAdminSDK(c config.Config, idp *provider.Client) (admin.SDK, error) {
	if c.GetAdminClientSecret() == "" {
		log.Warn().Msg("no admin client secret configured; user management disabled")
		return nil, nil
	}

	tokenCache, err := admin.NewTokenCache(func(ctx context.Context) (*provider.TokenSet, error) {
		return idp.ClientCredentials(ctx, c.GetAdminClientID(), c.GetAdminClientSecret())
	})
	if err != nil {
		return nil, err
	}

	return admin.New(admin.Config{
		BaseURL: c.GetProviderBaseURL(),
		Realm:   c.GetRealm(),
	}, tokenCache)
}

// sweepSessions periodically removes dead session records so an instance
// that runs for weeks does not accumulate them without bound.
func sweepSessions(ctx context.Context, sessions *session.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sessions.CleanupExpiredSessions(); err != nil {
				log.Error().Err(err).Msg("session cleanup failed")
			}
		}
	}
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
