package models

import (
	"time"
)

// PlayEvent is a single entry from the user's recent listening history.
// Immutable once produced by the history client.
type PlayEvent struct {
	TrackID    string    `json:"track_id"`
	TrackName  string    `json:"track_name"`
	ArtistName string    `json:"artist_name"`
	PlayedAt   time.Time `json:"played_at"`
}

// Complete reports whether the event carries the metadata ranking needs.
// Incomplete events are excluded from ranking, not treated as errors.
func (e PlayEvent) Complete() bool {
	return e.TrackID != "" && e.TrackName != "" && e.ArtistName != ""
}

// TrackRanking is one entry of the frequency ranking derived from play
// events. FirstPlayed is the earliest observed play of the track inside the
// lookback window; it breaks play-count ties deterministically.
type TrackRanking struct {
	TrackID     string    `json:"track_id"`
	PlayCount   int       `json:"play_count"`
	FirstPlayed time.Time `json:"first_played"`
}

// PlaylistSpec describes the playlist to publish: a name and an ordered
// track list. Publishing replaces the remote track list wholesale.
type PlaylistSpec struct {
	Name     string   `json:"name"`
	TrackIDs []string `json:"track_ids"`
}

// Playlist is the provider-assigned result of publishing a spec.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	TrackCount int    `json:"track_count"`
}

// Report statuses returned to the invoking scheduler.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Report is the structured result of one invocation, returned to the
// scheduler/runtime and printed by the CLI.
type Report struct {
	Status      string `json:"status"`
	Detail      string `json:"detail"`
	PlaylistURL string `json:"playlistUrl,omitempty"`
	Component   string `json:"component,omitempty"`
	RunID       string `json:"run_id"`
}

// Failed reports whether the invocation ended in the terminal failure state.
func (r *Report) Failed() bool {
	return r.Status == StatusFailure
}
