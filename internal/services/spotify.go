// Spotify API implementation of [HistoryClient] and [PlaylistPublisher]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"moodify/internal/models"
	"moodify/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps recently-played pages at 50 items; ten pages cover far
	// more than a week of listening for one user.
	recentlyPlayedLimit    = 50
	recentlyPlayedMaxPages = 10

	playlistPageLimit = 50
	trackChunkSize    = 100

	// Requests per second against the Web API. Spotify's rolling-window
	// limit is generous; this keeps a paginating run well under it.
	requestsPerSecond = 5
)

// Scopes required by the scheduled runs and minted by the auth command.
var SpotifyScopes = []string{
	"user-read-recently-played",
	"playlist-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
}

// SpotifyUser represents the authenticated user's profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	URI     string          `json:"uri"`
	Artists []spotifyArtist `json:"artists"`
}

type playHistoryItem struct {
	Track    spotifyTrack `json:"track"`
	PlayedAt string       `json:"played_at"`
}

type playHistoryCursors struct {
	Before string `json:"before"`
}

type recentlyPlayedPage struct {
	Items   []playHistoryItem  `json:"items"`
	Next    *string            `json:"next"`
	Cursors playHistoryCursors `json:"cursors"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

type playlistOwner struct {
	ID string `json:"id"`
}

type spotifyPlaylist struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Owner        playlistOwner `json:"owner"`
	ExternalURLs externalURLs  `json:"external_urls"`
}

type paginatedPlaylists struct {
	Items []spotifyPlaylist `json:"items"`
	Next  *string           `json:"next"`
	Total int               `json:"total"`
}

// SpotifyService talks to the Spotify Web API using the refresh-token grant.
//
// The [oauth2] client exchanges the long-lived refresh token for access
// tokens and caches them in memory for the invocation; nothing is persisted.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      shared.RetryPolicy

	userID string // cached after the first profile lookup
}

// SpotifyOption overrides service defaults, primarily for tests.
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the service at a different API root.
func WithBaseURL(baseURL string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the OAuth2-wrapped HTTP client.
func WithHTTPClient(client *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = client }
}

// OAuthConfig builds the OAuth2 configuration for the Spotify endpoints.
// Shared with the one-time authorization flow in the auth command.
func OAuthConfig(cfg shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       SpotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

// NewSpotifyService creates a Spotify service from validated credentials.
func NewSpotifyService(ctx context.Context, cfg shared.SpotifyConfig, retry shared.RetryPolicy, opts ...SpotifyOption) (*SpotifyService, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing Spotify client credentials", shared.ErrConfiguration)
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing Spotify refresh token", shared.ErrConfiguration)
	}

	source := OAuthConfig(cfg).TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	s := &SpotifyService{
		baseURL:    spotifyBaseURL,
		httpClient: oauth2.NewClient(ctx, source),
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		retry:      retry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs one rate-limited, authenticated request and decodes the
// JSON response into result. Status codes map onto the error taxonomy.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token refresh rejected: %v", shared.ErrAuth, retrieveErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
		}
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrUnexpectedResponse, err)
		}
	}
	return nil
}

// checkStatus maps non-2xx responses onto the error taxonomy, preserving the
// Retry-After hint on 429s.
func (s *SpotifyService) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: spotify returned 401", shared.ErrAuth)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: spotify returned 403", shared.ErrQuotaExceeded)
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("%w: spotify returned 429", shared.ErrTransient)
		if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && seconds > 0 {
			return &shared.RetryAfterError{After: time.Duration(seconds) * time.Second, Err: err}
		}
		return err
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: spotify returned %d", shared.ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("%w: spotify returned %d", shared.ErrUnexpectedResponse, resp.StatusCode)
	}
}

// getJSON wraps a GET in the retry policy.
func (s *SpotifyService) getJSON(ctx context.Context, endpoint string, result any) error {
	return s.retry.Do(ctx, func() error {
		return s.doRequest(ctx, http.MethodGet, endpoint, nil, result)
	})
}

// UserProfile retrieves and caches the authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.getJSON(ctx, "/me", &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile response missing user id", shared.ErrUnexpectedResponse)
	}
	s.userID = user.ID
	return &user, nil
}

// RecentlyPlayed implements [HistoryClient] by paging backward through the
// cursor API until the window is exhausted or the page cap is reached.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, window time.Duration) ([]models.PlayEvent, error) {
	cutoff := time.Now().Add(-window)
	events := []models.PlayEvent{}
	before := ""

	for page := 0; page < recentlyPlayedMaxPages; page++ {
		endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", recentlyPlayedLimit)
		if before != "" {
			endpoint += "&before=" + url.QueryEscape(before)
		}

		var result recentlyPlayedPage
		if err := s.getJSON(ctx, endpoint, &result); err != nil {
			return nil, err
		}
		if len(result.Items) == 0 {
			break
		}

		windowExhausted := false
		for _, item := range result.Items {
			playedAt, err := time.Parse(time.RFC3339, item.PlayedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: bad played_at %q: %v", shared.ErrUnexpectedResponse, item.PlayedAt, err)
			}
			if playedAt.Before(cutoff) {
				windowExhausted = true
				break
			}
			events = append(events, models.PlayEvent{
				TrackID:    item.Track.ID,
				TrackName:  item.Track.Name,
				ArtistName: joinArtists(item.Track.Artists),
				PlayedAt:   playedAt,
			})
		}

		if windowExhausted || result.Next == nil || result.Cursors.Before == "" {
			break
		}
		before = result.Cursors.Before
	}

	return events, nil
}

// Publish implements [PlaylistPublisher]. An existing playlist owned by the
// user and matching the spec name gets its track list replaced; otherwise the
// playlist is created first. Replace-not-append keeps the operation safely
// repeatable.
func (s *SpotifyService) Publish(ctx context.Context, spec models.PlaylistSpec) (*models.Playlist, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: playlist spec has no name", shared.ErrConfiguration)
	}

	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.findPlaylist(ctx, spec.Name, user.ID)
	if err != nil {
		return nil, err
	}

	target := existing
	if target == nil {
		target, err = s.createPlaylist(ctx, user.ID, spec.Name)
		if err != nil {
			return nil, err
		}
	}

	if err := s.replaceTracks(ctx, target.ID, spec.TrackIDs); err != nil {
		return nil, err
	}

	shareURL := target.ExternalURLs.Spotify
	if shareURL == "" {
		shareURL = "https://open.spotify.com/playlist/" + target.ID
	}

	return &models.Playlist{
		ID:         target.ID,
		Name:       spec.Name,
		URL:        shareURL,
		TrackCount: len(spec.TrackIDs),
	}, nil
}

// findPlaylist pages through the user's playlists looking for one they own
// with the given name. Returns nil when no playlist matches.
func (s *SpotifyService) findPlaylist(ctx context.Context, name, userID string) (*spotifyPlaylist, error) {
	offset := 0
	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", playlistPageLimit, offset)

		var page paginatedPlaylists
		if err := s.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, pl := range page.Items {
			if pl.Name == name && pl.Owner.ID == userID {
				found := pl
				return &found, nil
			}
		}

		if page.Next == nil || len(page.Items) == 0 {
			return nil, nil
		}
		offset += playlistPageLimit
	}
}

func (s *SpotifyService) createPlaylist(ctx context.Context, userID, name string) (*spotifyPlaylist, error) {
	body := map[string]any{
		"name":        name,
		"public":      false,
		"description": fmt.Sprintf("Your most played tracks, refreshed %s.", time.Now().Format("2006-01-02")),
	}

	var created spotifyPlaylist
	err := s.retry.Do(ctx, func() error {
		endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
		return s.doRequest(ctx, http.MethodPost, endpoint, body, &created)
	})
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: create playlist response missing id", shared.ErrUnexpectedResponse)
	}
	return &created, nil
}

// replaceTracks overwrites the playlist's track list. The first call is the
// provider-native replace (PUT); chunks past the 100-URI cap are appended
// after it, preserving spec order.
func (s *SpotifyService) replaceTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = "spotify:track:" + id
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	first := uris
	if len(first) > trackChunkSize {
		first = uris[:trackChunkSize]
	}
	err := s.retry.Do(ctx, func() error {
		return s.doRequest(ctx, http.MethodPut, endpoint, map[string]any{"uris": first}, nil)
	})
	if err != nil {
		return err
	}

	for start := trackChunkSize; start < len(uris); start += trackChunkSize {
		end := start + trackChunkSize
		if end > len(uris) {
			end = len(uris)
		}
		chunk := uris[start:end]
		err := s.retry.Do(ctx, func() error {
			return s.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"uris": chunk}, nil)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func joinArtists(artists []spotifyArtist) string {
	names := make([]string, 0, len(artists))
	for _, artist := range artists {
		if artist.Name != "" {
			names = append(names, artist.Name)
		}
	}
	return strings.Join(names, ", ")
}
