// Package ratelimit throttles outgoing API requests so a run never trips
// the upstream request quotas.
package ratelimit

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Transport waits on a token bucket before every request.
type Transport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewTransport allows one request per interval with the given burst.
// A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, interval time.Duration, burst int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &Transport{base: base, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// NewClient returns an http.Client using a rate-limited transport.
func NewClient(interval time.Duration, burst int, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewTransport(nil, interval, burst),
		Timeout:   timeout,
	}
}
