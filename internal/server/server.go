// Package server runs the one-time OAuth2 authorization flow that mints the
// refresh token used by scheduled runs.
//
// The auth command starts a temporary HTTP server on the redirect URI's
// address, opens the browser to Spotify's consent page, handles the callback,
// and shuts the server down once a token (or an error) arrives. Nothing here
// runs during a scheduled invocation.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"moodify/internal/shared"
)

// authorizeTimeout bounds how long the flow waits for the user to grant
// access in the browser.
const authorizeTimeout = 2 * time.Minute

// Flow drives the local OAuth2 authorization code flow.
type Flow struct {
	config      *oauth2.Config
	logger      *log.Logger
	openBrowser func(string) error
}

// FlowOption overrides flow defaults, primarily for tests.
type FlowOption func(*Flow)

// WithLogger replaces the flow's logger.
func WithLogger(logger *log.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// WithBrowserOpener replaces the function that opens the system browser.
func WithBrowserOpener(open func(string) error) FlowOption {
	return func(f *Flow) { f.openBrowser = open }
}

// NewFlow creates an authorization flow for the given OAuth2 configuration.
// The config's RedirectURL determines the local listen address.
func NewFlow(config *oauth2.Config, opts ...FlowOption) (*Flow, error) {
	if config.RedirectURL == "" {
		return nil, fmt.Errorf("%w: redirect URI is required for authorization", shared.ErrConfiguration)
	}
	if _, err := listenAddr(config.RedirectURL); err != nil {
		return nil, err
	}

	f := &Flow{
		config:      config,
		logger:      shared.NewLogger(nil),
		openBrowser: shared.OpenBrowser,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Run executes the authorization flow and returns the granted token. The
// token's RefreshToken field is what scheduled runs need.
func (f *Flow) Run(ctx context.Context) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, err
	}

	addr, err := listenAddr(f.config.RedirectURL)
	if err != nil {
		return nil, err
	}

	handler := newCallbackHandler(f.config, state)
	mux := http.NewServeMux()
	mux.Handle(callbackPath(f.config.RedirectURL), handler)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		f.logger.Info("starting authorization server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	authURL := f.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if err := f.openBrowser(authURL); err != nil {
		f.logger.Warn("failed to open browser automatically", "error", err)
		fmt.Printf("Open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := time.NewTimer(authorizeTimeout)
	defer timeout.Stop()

	var result authResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("authorization server error: %w", err)
	case <-ctx.Done():
		shutdown(httpServer, f.logger)
		return nil, fmt.Errorf("%w: authorization cancelled", shared.ErrTimeout)
	case <-timeout.C:
		shutdown(httpServer, f.logger)
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authorizeTimeout)
	}

	shutdown(httpServer, f.logger)

	if result.err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuth, result.err)
	}
	if result.token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuth)
	}
	if result.token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: authorization granted no refresh token", shared.ErrAuth)
	}

	return result.token, nil
}

func shutdown(srv *http.Server, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("error shutting down authorization server", "error", err)
	}
}

// listenAddr derives the local listen address from the redirect URI.
func listenAddr(redirectURL string) (string, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid redirect URI %q", shared.ErrConfiguration, redirectURL)
	}
	host := parsed.Host
	if parsed.Port() == "" {
		host += ":80"
	}
	return host, nil
}

func callbackPath(redirectURL string) string {
	parsed, err := url.Parse(redirectURL)
	if err != nil || parsed.Path == "" {
		return "/callback"
	}
	return parsed.Path
}
