package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

var (
	ErrInvalidState        = errors.New("invalid state parameter")
	ErrCallbackPending     = errors.New("a callback wait is already pending")
	ErrServerNotStarted    = errors.New("callback server not started")
	ErrAuthorizationDenied = errors.New("authorization denied")
)

// CallbackResult is the one-shot outcome of the loopback redirect.
type CallbackResult struct {
	Success bool
	Code    string
	Error   string
}

type callbackOutcome struct {
	result CallbackResult
	err    error
}

// CallbackServer listens on the loopback interface for the OAuth redirect.
// It accepts exactly one result per Start; a second Wait while one is
// pending fails with ErrCallbackPending.
type CallbackServer struct {
	port int

	mu       sync.Mutex
	state    string
	listener net.Listener
	server   *http.Server
	outcomes chan callbackOutcome
	waiting  bool
}

func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{port: port}
}

// Start binds the listener. expectedState, when not empty, must match the
// state query parameter of the callback.
func (s *CallbackServer) Start(expectedState string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen for callback: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.state = expectedState
	s.listener = ln
	s.outcomes = make(chan callbackOutcome, 1)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() { _ = s.server.Serve(ln) }()
	return nil
}

// Addr returns the bound address, useful when started on port 0.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Wait blocks until the redirect arrives or ctx is done.
func (s *CallbackServer) Wait(ctx context.Context) (CallbackResult, error) {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return CallbackResult{}, ErrServerNotStarted
	}
	if s.waiting {
		s.mu.Unlock()
		return CallbackResult{}, ErrCallbackPending
	}
	s.waiting = true
	outcomes := s.outcomes
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.waiting = false
		s.mu.Unlock()
	}()

	select {
	case out := <-outcomes:
		return out.result, out.err
	case <-ctx.Done():
		return CallbackResult{}, fmt.Errorf("waiting for callback: %w", ctx.Err())
	}
}

func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// WaitForCallback runs Start, Wait and Stop and returns the authorization code.
func (s *CallbackServer) WaitForCallback(ctx context.Context, expectedState string, timeout time.Duration) (string, error) {
	if err := s.Start(expectedState); err != nil {
		return "", err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(shutdownCtx)
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.Wait(ctx)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%w: %s", ErrAuthorizationDenied, result.Error)
	}
	return result.Code, nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	s.mu.Lock()
	expected := s.state
	outcomes := s.outcomes
	s.mu.Unlock()

	if expected != "" && query.Get("state") != expected {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		deliver(outcomes, callbackOutcome{err: ErrInvalidState})
		return
	}

	if errCode := query.Get("error"); errCode != "" {
		msg := errCode
		if desc := query.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		http.Error(w, "Authorization failed: "+msg, http.StatusBadRequest)
		deliver(outcomes, callbackOutcome{result: CallbackResult{Error: msg}})
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		deliver(outcomes, callbackOutcome{result: CallbackResult{Error: "missing authorization code"}})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, "<html><body>Authorization complete. You can close this window.</body></html>")
	deliver(outcomes, callbackOutcome{result: CallbackResult{Success: true, Code: code}})
}

// deliver keeps the first outcome; later redirects are answered but dropped.
func deliver(ch chan callbackOutcome, out callbackOutcome) {
	select {
	case ch <- out:
	default:
	}
}
