package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/gauthierbraillon/watchlog/internal/auth"
	"github.com/gauthierbraillon/watchlog/internal/config"
	"github.com/gauthierbraillon/watchlog/internal/history"
	"github.com/gauthierbraillon/watchlog/internal/logging"
	"github.com/gauthierbraillon/watchlog/internal/ratelimit"
	"github.com/gauthierbraillon/watchlog/internal/settings"
	"github.com/gauthierbraillon/watchlog/internal/simkl"
	"github.com/gauthierbraillon/watchlog/internal/trakt"
	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

const requestTimeout = 30 * time.Second

// authProvider is a history provider that can also start the browser flow.
type authProvider interface {
	history.Provider
	AuthURL(state string) string
}

// app is the composition root shared by all commands.
type app struct {
	cfg      *config.Config
	settings *settings.Store
	logger   *slog.Logger
	closeLog func() error
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, closeLog := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Stderr: os.Stderr,
	})

	store, err := settings.NewStore(afero.NewOsFs(), cfg.ConfigDir)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	return &app{cfg: cfg, settings: store, logger: logger, closeLog: closeLog}, nil
}

func (a *app) Close() {
	_ = a.closeLog()
}

// clientCredentials prefers the environment and falls back to the
// registration saved by a previous `auth`.
func (a *app) clientCredentials(s history.Service) (config.ClientCredentials, error) {
	if creds := a.cfg.Client(s); creds.Complete() {
		return creds, nil
	}
	saved := a.settings.Get().Service(s)
	creds := config.ClientCredentials{ID: saved.ClientID, Secret: saved.ClientSecret}
	if creds.Complete() {
		return creds, nil
	}
	return config.ClientCredentials{}, fmt.Errorf("missing credentials: set %s and %s environment variables",
		config.EnvKey(s, "CLIENT_ID"), config.EnvKey(s, "CLIENT_SECRET"))
}

func (a *app) provider(s history.Service) (authProvider, error) {
	creds, err := a.clientCredentials(s)
	if err != nil {
		return nil, err
	}

	apiURL := a.cfg.APIURL(s)
	httpClient := ratelimit.NewClient(a.cfg.RateLimit, 1, requestTimeout)

	switch s {
	case history.ServiceTrakt:
		oc := oauth.TraktOAuthConfig(creds.ID, creds.Secret, a.cfg.RedirectURL())
		oc.TokenURL = apiURL + "/oauth/token"
		return trakt.NewClient(oc,
			trakt.WithBaseURL(apiURL),
			trakt.WithHTTPClient(httpClient),
			trakt.WithLogger(a.logger.With("service", s))), nil
	case history.ServiceSimkl:
		oc := oauth.SimklOAuthConfig(creds.ID, creds.Secret, a.cfg.RedirectURL())
		oc.TokenURL = apiURL + "/oauth/token"
		return simkl.NewClient(oc, simkl.WithBaseURL(apiURL), simkl.WithHTTPClient(httpClient)), nil
	}
	return nil, history.ErrUnknownService
}

// manager restores s's credentials from settings and persists every change.
func (a *app) manager(s history.Service, ex auth.Exchanger) *auth.Manager {
	store := auth.NewStore()
	store.Restore(a.settings.Get().Service(s).Credentials())
	return auth.NewManager(store, ex,
		auth.WithPersister(a.settings.Persister(s)),
		auth.WithLogger(a.logger.With("service", s)))
}

func (a *app) session(s history.Service) (*history.Session, error) {
	p, err := a.provider(s)
	if err != nil {
		return nil, err
	}
	return history.NewSession(p, a.manager(s, p), history.WithLogger(a.logger)), nil
}

// describeError turns lifecycle errors into the command the user should run.
func describeError(s history.Service, err error) error {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		return fmt.Errorf("not authenticated (run 'watchlog auth %s')", s)
	case errors.Is(err, auth.ErrAuthenticationExpired):
		return fmt.Errorf("authentication expired (run 'watchlog auth %s'): %w", s, err)
	}
	return err
}
