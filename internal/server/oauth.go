package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// authResult is the outcome of one authorization callback: a token or the
// reason the grant failed.
type authResult struct {
	token *oauth2.Token
	err   error
}

// callbackHandler processes the OAuth2 authorization-code callback.
//
// Exactly one callback is accepted; replays get a 400. The state parameter
// must match the token minted for this flow, then the code is exchanged and
// the outcome delivered through the result channel, which is closed after
// the single send.
type callbackHandler struct {
	config  *oauth2.Config
	state   string
	once    sync.Once
	results chan authResult
}

func newCallbackHandler(config *oauth2.Config, state string) *callbackHandler {
	return &callbackHandler{
		config:  config,
		state:   state,
		results: make(chan authResult, 1),
	}
}

func (h *callbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accepted := false
	h.once.Do(func() {
		accepted = true
		h.results <- h.handle(w, r)
		close(h.results)
	})
	if !accepted {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

// handle validates and exchanges the callback, writing the HTTP response as
// a side effect.
func (h *callbackHandler) handle(w http.ResponseWriter, r *http.Request) authResult {
	query := r.URL.Query()

	if query.Get("state") != h.state {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return authResult{err: fmt.Errorf("state mismatch on callback")}
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "authorization failed", http.StatusBadRequest)
		return authResult{err: fmt.Errorf("authorization denied: %s (%s)",
			query.Get("error"), query.Get("error_description"))}
	}

	token, err := h.config.Exchange(context.Background(), code)
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return authResult{err: fmt.Errorf("token exchange failed: %w", err)}
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, successPage)
	return authResult{token: token}
}

// Result delivers exactly one authResult, then the channel closes.
func (h *callbackHandler) Result() <-chan authResult {
	return h.results
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Moodify</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
  <h1 style="color: #1DB954">Moodify is authorized</h1>
  <p>You can close this window and return to the terminal.</p>
</body>
</html>
`
