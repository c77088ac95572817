// Package browser opens authorization pages in the user's browser.
package browser

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
)

// Runner starts an external command without waiting for it.
type Runner func(name string, args ...string) error

func startCommand(name string, args ...string) error {
	return exec.Command(name, args...).Start() // #nosec G204 -- URL validated by Open
}

// Opener launches URLs through the platform's URL handler.
type Opener struct {
	goos    string
	browser string
	run     Runner
}

type Option func(*Opener)

// WithRunner replaces process execution (useful for testing).
func WithRunner(run Runner) Option {
	return func(o *Opener) { o.run = run }
}

// WithPlatform overrides runtime.GOOS.
func WithPlatform(goos string) Option {
	return func(o *Opener) { o.goos = goos }
}

// New returns an Opener for the current platform. $BROWSER, when set,
// takes precedence over the platform handler.
func New(opts ...Option) *Opener {
	o := &Opener{
		goos:    runtime.GOOS,
		browser: os.Getenv("BROWSER"),
		run:     startCommand,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open opens the specified URL in the default browser.
// It validates the URL before passing it to the system browser to prevent command injection.
func (o *Opener) Open(urlString string) error {
	// Validate URL to prevent command injection (fixes G204/CWE-78)
	parsedURL, err := url.Parse(urlString)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Whitelist allowed schemes to prevent malicious URLs
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https allowed)", parsedURL.Scheme)
	}

	name, args, err := o.command(parsedURL.String())
	if err != nil {
		return err
	}
	return o.run(name, args...)
}

func (o *Opener) command(target string) (string, []string, error) {
	if o.browser != "" {
		return o.browser, []string{target}, nil
	}
	switch o.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", o.goos)
	}
}

// Open opens url with a default Opener.
func Open(url string) error {
	return New().Open(url)
}
