package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moodify/internal/models"
	"moodify/internal/services"
	"moodify/internal/shared"
)

type mockHistory struct {
	events []models.PlayEvent
	err    error
	calls  int
}

func (m *mockHistory) RecentlyPlayed(ctx context.Context, window time.Duration) ([]models.PlayEvent, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

type mockPublisher struct {
	playlist *models.Playlist
	err      error
	calls    int
	lastSpec models.PlaylistSpec
}

func (m *mockPublisher) Publish(ctx context.Context, spec models.PlaylistSpec) (*models.Playlist, error) {
	m.calls++
	m.lastSpec = spec
	if m.err != nil {
		return nil, m.err
	}
	return m.playlist, nil
}

// blockingHistory never returns until the context expires.
type blockingHistory struct {
	calls int
}

func (b *blockingHistory) RecentlyPlayed(ctx context.Context, window time.Duration) ([]models.PlayEvent, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockNotifier struct {
	messageID    string
	err          error
	calls        int
	lastPlaylist *models.Playlist
}

func (m *mockNotifier) SendReminder(ctx context.Context, playlist *models.Playlist) (string, error) {
	m.calls++
	m.lastPlaylist = playlist
	if m.err != nil {
		return "", m.err
	}
	return m.messageID, nil
}

type memCache struct {
	entries map[string]string
	getErr  error
}

func newMemCache() *memCache { return &memCache{entries: map[string]string{}} }

func (c *memCache) Get(ctx context.Context, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	value, ok := c.entries[key]
	return value, ok, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *memCache) Close() error { return nil }

func testEvents(count int) []models.PlayEvent {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	events := make([]models.PlayEvent, count)
	for i := range events {
		events[i] = models.PlayEvent{
			TrackID:    fmt.Sprintf("t%d", i%3),
			TrackName:  fmt.Sprintf("Track %d", i%3),
			ArtistName: "Artist",
			PlayedAt:   base.Add(time.Duration(i) * time.Hour),
		}
	}
	return events
}

func testOpts(history *mockHistory, publisher *mockPublisher, notifier *mockNotifier) EngineOpts {
	return EngineOpts{
		History:   history,
		Publisher: publisher,
		Notifier:  notifier,
		Playlist: shared.PlaylistConfig{
			NameTemplate: "Moodify — Weekly Gems",
			TopN:         10,
			LookbackDays: 7,
		},
		Deadline: 5 * time.Second,
	}
}

func TestEngineRun(t *testing.T) {
	published := &models.Playlist{
		ID:         "pl1",
		Name:       "Moodify — Weekly Gems",
		URL:        "https://open.spotify.com/playlist/pl1",
		TrackCount: 3,
	}

	t.Run("HappyPath", func(t *testing.T) {
		history := &mockHistory{events: testEvents(9)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{messageID: "msg-1"}

		engine := NewEngine(testOpts(history, publisher, notifier))
		progress := make(chan ProgressUpdate, 16)
		report := engine.Run(context.Background(), progress)

		if report.Failed() {
			t.Fatalf("expected success, got %s (%s)", report.Status, report.Detail)
		}
		if report.PlaylistURL != published.URL {
			t.Errorf("expected playlist URL in report, got %q", report.PlaylistURL)
		}
		if report.RunID == "" {
			t.Error("expected a run ID")
		}
		if publisher.calls != 1 || notifier.calls != 1 {
			t.Errorf("expected one publish and one reminder, got %d/%d", publisher.calls, notifier.calls)
		}
		if publisher.lastSpec.Name != "Moodify — Weekly Gems" {
			t.Errorf("unexpected spec name %q", publisher.lastSpec.Name)
		}
		if len(publisher.lastSpec.TrackIDs) != 3 {
			t.Errorf("expected 3 ranked tracks, got %d", len(publisher.lastSpec.TrackIDs))
		}

		close(progress)
		seen := map[State]bool{}
		for update := range progress {
			seen[update.State] = true
		}
		for _, want := range []State{FetchingHistory, Ranking, Publishing, Notifying, Done} {
			if !seen[want] {
				t.Errorf("missing progress state %s", want)
			}
		}
	})

	t.Run("HistoryFailureFailsFast", func(t *testing.T) {
		history := &mockHistory{err: fmt.Errorf("%w: spotify returned 401", shared.ErrAuth)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{}

		report := NewEngine(testOpts(history, publisher, notifier)).Run(context.Background(), nil)

		if !report.Failed() {
			t.Fatal("expected failure report")
		}
		if report.Component != ComponentHistory {
			t.Errorf("expected component %s, got %s", ComponentHistory, report.Component)
		}
		if publisher.calls != 0 || notifier.calls != 0 {
			t.Error("no step after the failing one should run")
		}
	})

	t.Run("DeadlineExpiryFailsWithTimeout", func(t *testing.T) {
		history := &blockingHistory{}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{}

		opts := testOpts(nil, publisher, notifier)
		opts.History = history
		opts.Deadline = 10 * time.Millisecond
		report := NewEngine(opts).Run(context.Background(), nil)

		if !report.Failed() {
			t.Fatal("expected failure report")
		}
		if report.Component != ComponentHistory {
			t.Errorf("expected component %s, got %s", ComponentHistory, report.Component)
		}
		if !strings.Contains(report.Detail, shared.ErrTimeout.Error()) {
			t.Errorf("expected timeout in detail, got %q", report.Detail)
		}
		if publisher.calls != 0 || notifier.calls != 0 {
			t.Error("no step after the deadline should run")
		}
	})

	t.Run("PublisherQuotaFailureSendsNoEmail", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{err: fmt.Errorf("%w: spotify returned 403", shared.ErrQuotaExceeded)}
		notifier := &mockNotifier{}

		report := NewEngine(testOpts(history, publisher, notifier)).Run(context.Background(), nil)

		if !report.Failed() {
			t.Fatal("expected failure report")
		}
		if report.Component != ComponentPublisher {
			t.Errorf("expected component %s, got %s", ComponentPublisher, report.Component)
		}
		if notifier.calls != 0 {
			t.Error("reminder must not be sent when publishing fails")
		}
	})

	t.Run("NotifierFailureKeepsPlaylistURL", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{err: fmt.Errorf("%w: rejected", shared.ErrInvalidRecipient)}
		cache := newMemCache()

		opts := testOpts(history, publisher, notifier)
		opts.Cache = cache
		report := NewEngine(opts).Run(context.Background(), nil)

		if !report.Failed() {
			t.Fatal("expected failure report")
		}
		if report.Component != ComponentNotifier {
			t.Errorf("expected component %s, got %s", ComponentNotifier, report.Component)
		}
		if report.PlaylistURL != published.URL {
			t.Error("partial completion should still surface the playlist URL")
		}
		if len(cache.entries) != 0 {
			t.Error("fingerprint must not be recorded when the reminder fails")
		}
	})

	t.Run("ZeroEventsSkipsPublishing", func(t *testing.T) {
		history := &mockHistory{events: nil}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{}

		report := NewEngine(testOpts(history, publisher, notifier)).Run(context.Background(), nil)

		if report.Failed() {
			t.Fatalf("empty window should succeed, got %s", report.Detail)
		}
		if publisher.calls != 0 || notifier.calls != 0 {
			t.Error("empty ranking should skip publishing and notifying")
		}
	})

	t.Run("UnchangedHistorySkipsPublishing", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{messageID: "msg-1"}
		cache := newMemCache()

		opts := testOpts(history, publisher, notifier)
		opts.Cache = cache

		first := NewEngine(opts).Run(context.Background(), nil)
		if first.Failed() {
			t.Fatalf("first run should succeed: %s", first.Detail)
		}
		if publisher.calls != 1 || notifier.calls != 1 {
			t.Fatalf("first run should publish and notify, got %d/%d", publisher.calls, notifier.calls)
		}

		second := NewEngine(opts).Run(context.Background(), nil)
		if second.Failed() {
			t.Fatalf("second run should succeed: %s", second.Detail)
		}
		if publisher.calls != 1 || notifier.calls != 1 {
			t.Error("unchanged history should skip publishing and notifying")
		}
	})

	t.Run("CacheReadFailureIsNotFatal", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{messageID: "msg-1"}
		cache := newMemCache()
		cache.getErr = errors.New("redis down")

		opts := testOpts(history, publisher, notifier)
		opts.Cache = cache
		report := NewEngine(opts).Run(context.Background(), nil)

		if report.Failed() {
			t.Fatalf("cache failure must not fail the run: %s", report.Detail)
		}
		if publisher.calls != 1 {
			t.Error("cache failure should fall through to publishing")
		}
	})

	t.Run("DryRunPublishesNothing", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{}

		opts := testOpts(history, publisher, notifier)
		opts.DryRun = true
		report := NewEngine(opts).Run(context.Background(), nil)

		if report.Failed() {
			t.Fatalf("dry run should succeed: %s", report.Detail)
		}
		if publisher.calls != 0 || notifier.calls != 0 {
			t.Error("dry run must not publish or notify")
		}
	})

	t.Run("NotifyDryRunSendsMarkedReminder", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{messageID: "msg-1"}

		opts := testOpts(history, publisher, notifier)
		opts.DryRun = true
		opts.NotifyDryRun = true
		report := NewEngine(opts).Run(context.Background(), nil)

		if report.Failed() {
			t.Fatalf("dry run should succeed: %s", report.Detail)
		}
		if publisher.calls != 0 {
			t.Error("dry run must not publish")
		}
		if notifier.calls != 1 {
			t.Fatalf("expected one test reminder, got %d", notifier.calls)
		}
		if !strings.Contains(notifier.lastPlaylist.Name, "(dry run)") {
			t.Errorf("test reminder must be marked, got %q", notifier.lastPlaylist.Name)
		}
	})

	t.Run("DatedNameTemplate", func(t *testing.T) {
		history := &mockHistory{events: testEvents(6)}
		publisher := &mockPublisher{playlist: published}
		notifier := &mockNotifier{messageID: "msg-1"}

		opts := testOpts(history, publisher, notifier)
		opts.Playlist.NameTemplate = "Weekly Discoveries - {date}"
		opts.Now = func() time.Time { return time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC) }
		report := NewEngine(opts).Run(context.Background(), nil)

		if report.Failed() {
			t.Fatalf("expected success: %s", report.Detail)
		}
		if publisher.lastSpec.Name != "Weekly Discoveries - 2026-08-30" {
			t.Errorf("unexpected rendered name %q", publisher.lastSpec.Name)
		}
	})
}

// TestEngineRetriesTransientHistoryFailure wires a real Spotify service,
// backed by a server that rate-limits the first request, into the engine and
// verifies the run still completes.
func TestEngineRetriesTransientHistoryFailure(t *testing.T) {
	var historyCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/player/recently-played" {
			http.NotFound(w, r)
			return
		}
		historyCalls++
		if historyCalls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"track": map[string]any{
						"id":      "t1",
						"name":    "Song One",
						"uri":     "spotify:track:t1",
						"artists": []map[string]any{{"id": "a1", "name": "Artist A"}},
					},
					"played_at": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
				},
			},
			"next":    nil,
			"cursors": map[string]any{"before": ""},
		})
	}))
	defer server.Close()

	policy := shared.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	spotify, err := services.NewSpotifyService(context.Background(),
		shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
		policy,
		services.WithBaseURL(server.URL),
		services.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create spotify service: %v", err)
	}

	publisher := &mockPublisher{playlist: &models.Playlist{ID: "pl1", URL: "https://open.spotify.com/playlist/pl1", TrackCount: 1}}
	notifier := &mockNotifier{messageID: "msg-1"}

	opts := testOpts(nil, publisher, notifier)
	opts.History = spotify
	report := NewEngine(opts).Run(context.Background(), nil)

	if report.Failed() {
		t.Fatalf("expected retried run to succeed, got %s", report.Detail)
	}
	if historyCalls != 2 {
		t.Errorf("expected 2 history calls (transient then success), got %d", historyCalls)
	}
	if publisher.calls != 1 || notifier.calls != 1 {
		t.Errorf("expected publish and reminder after retry, got %d/%d", publisher.calls, notifier.calls)
	}
}
