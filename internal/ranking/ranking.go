// Package ranking turns a window of play events into an ordered top-track list.
//
// Pure functions only: no I/O, no clock, fully deterministic for a given
// input. The ordering invariant is play count descending, ties broken by the
// earliest first-played timestamp, then by track ID.
package ranking

import (
	"sort"

	"moodify/internal/models"
)

// TopTracks groups events by track, counts plays, and returns the topN
// tracks ordered by the ranking invariant.
//
// Events missing track ID, track name, or artist name are excluded. An empty
// or fully-excluded input yields an empty (non-nil) ranking. topN <= 0
// returns the full ranking.
func TopTracks(events []models.PlayEvent, topN int) []models.TrackRanking {
	byTrack := make(map[string]*models.TrackRanking)

	for _, event := range events {
		if !event.Complete() {
			continue
		}

		entry, ok := byTrack[event.TrackID]
		if !ok {
			byTrack[event.TrackID] = &models.TrackRanking{
				TrackID:     event.TrackID,
				PlayCount:   1,
				FirstPlayed: event.PlayedAt,
			}
			continue
		}

		entry.PlayCount++
		if event.PlayedAt.Before(entry.FirstPlayed) {
			entry.FirstPlayed = event.PlayedAt
		}
	}

	ranked := make([]models.TrackRanking, 0, len(byTrack))
	for _, entry := range byTrack {
		ranked = append(ranked, *entry)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].PlayCount != ranked[j].PlayCount {
			return ranked[i].PlayCount > ranked[j].PlayCount
		}
		if !ranked[i].FirstPlayed.Equal(ranked[j].FirstPlayed) {
			return ranked[i].FirstPlayed.Before(ranked[j].FirstPlayed)
		}
		return ranked[i].TrackID < ranked[j].TrackID
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// BuildSpec constructs the playlist spec from a ranking, preserving order.
func BuildSpec(name string, ranked []models.TrackRanking) models.PlaylistSpec {
	trackIDs := make([]string, len(ranked))
	for i, entry := range ranked {
		trackIDs[i] = entry.TrackID
	}
	return models.PlaylistSpec{Name: name, TrackIDs: trackIDs}
}
