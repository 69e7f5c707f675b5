package services

import (
	"context"
	"time"

	"moodify/internal/models"
)

// HistoryClient retrieves the user's recent listening history.
type HistoryClient interface {
	// RecentlyPlayed returns play events within the lookback window, most
	// recent first. The provider page cap bounds the result even when the
	// window is not exhausted.
	RecentlyPlayed(ctx context.Context, window time.Duration) ([]models.PlayEvent, error)
}

// PlaylistPublisher creates or replaces the generated playlist.
type PlaylistPublisher interface {
	// Publish looks up the playlist named in the spec; if it exists its
	// track list is replaced wholesale, otherwise the playlist is created.
	// Replace semantics (never append) make the operation safely repeatable.
	Publish(ctx context.Context, spec models.PlaylistSpec) (*models.Playlist, error)
}

// Notifier sends the reminder that a playlist was generated.
type Notifier interface {
	// SendReminder sends a single templated email and returns the provider
	// message ID. Callers must invoke it at most once per run.
	SendReminder(ctx context.Context, playlist *models.Playlist) (string, error)
}
