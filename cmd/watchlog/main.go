// Package main provides the watchlog CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/watchlog/internal/aggregator"
	"github.com/gauthierbraillon/watchlog/internal/display"
	"github.com/gauthierbraillon/watchlog/internal/history"
	"github.com/gauthierbraillon/watchlog/internal/settings"
	"github.com/gauthierbraillon/watchlog/pkg/browser"
	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

// version is set via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by `go install`.
func resolveVersion(v string, info *debug.BuildInfo) string {
	if v != "dev" {
		return v
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func buildVersion() string {
	info, _ := debug.ReadBuildInfo()
	return resolveVersion(version, info)
}

// newRootCmd creates the root command for watchlog CLI.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "watchlog",
		Short:         "Print what you watched on Trakt and SIMKL",
		Long:          "Watchlog keeps your Trakt and SIMKL authorizations valid and prints your viewing history as one list.",
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.SetVersionTemplate("watchlog version {{.Version}}\n")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func serviceArg(args []string) (history.Service, error) {
	if len(args) != 1 {
		return "", errors.New("requires a service argument: trakt or simkl")
	}
	s, err := history.ParseService(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid service %q: must be 'trakt' or 'simkl'", args[0])
	}
	return s, nil
}

// newAuthCmd creates the auth subcommand.
func newAuthCmd() *cobra.Command {
	var timeout time.Duration
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "auth <service>",
		Short: "Authenticate with a service (trakt or simkl)",
		Long:  "Run the OAuth authorization flow for Trakt or SIMKL. Existing credentials for the service are discarded first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := serviceArg(args)
			if err != nil {
				return err
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := a.clientCredentials(service)
			if err != nil {
				return err
			}
			provider, err := a.provider(service)
			if err != nil {
				return err
			}
			manager := a.manager(service, provider)
			if err := manager.Clear(); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			state := uuid.NewString()
			callbackServer := oauth.NewCallbackServer(a.cfg.CallbackPort)
			if err := callbackServer.Start(state); err != nil {
				return err
			}

			authURL := provider.AuthURL(state)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Authenticating with %s...\n", service)
			fmt.Fprintf(out, "Authorization URL: %s\n", authURL)
			if !noBrowser {
				if err := browser.Open(authURL); err != nil {
					fmt.Fprintf(out, "Could not open browser. Please visit the URL above.\n")
				}
			}

			fmt.Fprintf(out, "Waiting for authorization...\n")
			code, err := callbackServer.WaitForCallback(ctx, state, timeout)
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Fprintf(out, "Exchanging authorization code...\n")
			if err := manager.ExchangeCode(ctx, code); err != nil {
				return fmt.Errorf("token exchange failed: %w", err)
			}

			err = a.settings.Update(func(st *settings.Settings) {
				entry := st.Service(service)
				entry.ClientID = creds.ID
				entry.ClientSecret = creds.Secret
				st.SetService(service, entry)
			})
			if err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}

			fmt.Fprintf(out, "Successfully authenticated with %s!\n", service)
			fmt.Fprintf(out, "Credentials saved to: %s\n", a.settings.Path())
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser redirect")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL without opening a browser")

	return cmd
}

// newLogoutCmd creates the logout subcommand.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <service>",
		Short: "Forget stored credentials for a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := serviceArg(args)
			if err != nil {
				return err
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager(service, nil).Clear(); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s.\n", service)
			return nil
		},
	}
}

// newHistoryCmd creates the history subcommand.
func newHistoryCmd() *cobra.Command {
	var serviceFlag string
	var since, until string
	var limit int
	var kind string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Display watched movies and episodes",
		Long:  "Fetch viewing history for a date range (default: the last 24 hours) from Trakt, SIMKL or both.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			services, err := selectServices(serviceFlag, a.settings.Get().Primary)
			if err != nil {
				return err
			}

			now := time.Now()
			r, err := parseRange(since, until, now)
			if err != nil {
				return err
			}

			var kinds []history.Kind
			switch kind {
			case "":
			case string(history.KindMovie), string(history.KindEpisode):
				kinds = []history.Kind{history.Kind(kind)}
			default:
				return fmt.Errorf("invalid kind %q: must be 'movie' or 'episode'", kind)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()

			var sources []aggregator.Source
			var failures []error
			for _, s := range services {
				session, err := a.session(s)
				if err != nil {
					failures = append(failures, &aggregator.SourceError{Service: s, Err: err})
					continue
				}
				sources = append(sources, session)
			}

			agg := aggregator.New()
			failures = append(failures, agg.Collect(ctx, r, sources...)...)
			for _, f := range failures {
				var srcErr *aggregator.SourceError
				if errors.As(f, &srcErr) {
					f = fmt.Errorf("%s: %w", srcErr.Service, describeError(srcErr.Service, srcErr.Err))
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", f)
			}
			if len(failures) == len(services) {
				return errors.New("no service could be read")
			}

			items := agg.GetFeed(aggregator.FeedOptions{Limit: limit, Kinds: kinds})
			if asJSON {
				return display.WriteJSONLines(cmd.OutOrStdout(), items)
			}
			fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatHistory(items))
			return nil
		},
	}

	cmd.Flags().StringVarP(&serviceFlag, "service", "s", "", "Service to read: trakt, simkl or all (default: configured primary)")
	cmd.Flags().StringVar(&since, "since", "24h", "Range start: a duration before now (e.g. 72h), a date (2006-01-02) or RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "Range end, same formats as --since (default: now)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of items to display (0 = all)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only show movie or episode items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per line")

	return cmd
}

func selectServices(flag string, primary history.Service) ([]history.Service, error) {
	switch flag {
	case "":
		return []history.Service{primary}, nil
	case "all":
		return history.Services, nil
	}
	s, err := history.ParseService(flag)
	if err != nil {
		return nil, fmt.Errorf("invalid service %q: must be 'trakt', 'simkl' or 'all'", flag)
	}
	return []history.Service{s}, nil
}

// parseRange resolves --since/--until relative to now. Bare dates are
// midnight local time; an --until date covers that whole day.
func parseRange(since, until string, now time.Time) (history.DateRange, error) {
	start, err := parseInstant(since, now, false)
	if err != nil {
		return history.DateRange{}, fmt.Errorf("invalid --since: %w", err)
	}
	end := now
	if until != "" {
		end, err = parseInstant(until, now, true)
		if err != nil {
			return history.DateRange{}, fmt.Errorf("invalid --until: %w", err)
		}
	}
	r := history.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return history.DateRange{}, err
	}
	return r, nil
}

func parseInstant(v string, now time.Time, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, now.Location()); err == nil {
		if endOfDay {
			return t.Add(24*time.Hour - time.Second), nil
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is not a duration, date or RFC 3339 time", v)
}

// newConfigCmd creates the config subcommand.
func newConfigCmd() *cobra.Command {
	var primary string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View configuration paths and authentication status, or set the primary service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if primary != "" {
				s, err := history.ParseService(primary)
				if err != nil {
					return fmt.Errorf("invalid service %q: must be 'trakt' or 'simkl'", primary)
				}
				if err := a.settings.SetPrimary(s); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			st := a.settings.Get()
			fmt.Fprintf(out, "Config directory: %s\n", a.cfg.ConfigDir)
			fmt.Fprintf(out, "Settings file: %s\n", a.settings.Path())
			if a.cfg.LogFile != "" {
				fmt.Fprintf(out, "Log file: %s\n", a.cfg.LogFile)
			}
			fmt.Fprintf(out, "Primary service: %s\n", st.Primary)
			for _, s := range history.Services {
				fmt.Fprintf(out, "%s: %s\n", s, authStatus(st.Service(s)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&primary, "primary", "", "Set the default service for history (trakt or simkl)")

	return cmd
}

func authStatus(entry settings.ServiceSettings) string {
	creds := entry.Credentials()
	switch {
	case !creds.Authenticated():
		return "not authenticated"
	case !creds.HasExpiry():
		return "authenticated"
	case time.Now().After(creds.ExpiresAt):
		return "expired " + creds.ExpiresAt.Local().Format(time.DateTime)
	default:
		return "authenticated until " + creds.ExpiresAt.Local().Format(time.DateTime)
	}
}
