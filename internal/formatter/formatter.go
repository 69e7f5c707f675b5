// package formatter renders the reminder email and CLI output as plain text
package formatter

import (
	"fmt"
	"strings"
	"time"

	"moodify/internal/models"
)

// ReminderSubject renders the email subject for a published playlist.
func ReminderSubject(playlist *models.Playlist) string {
	return fmt.Sprintf("Your weekly playlist is ready: %s", playlist.Name)
}

// ReminderBody renders the plain-text reminder email.
func ReminderBody(playlist *models.Playlist, now time.Time) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Your weekly playlist %q has been updated!\n\n", playlist.Name)
	buf.WriteString("Playlist details:\n")
	fmt.Fprintf(&buf, "- Name: %s\n", playlist.Name)
	fmt.Fprintf(&buf, "- Tracks: %d\n", playlist.TrackCount)
	fmt.Fprintf(&buf, "- Updated: %s\n\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&buf, "Listen here:\n%s\n\n", playlist.URL)
	buf.WriteString("Enjoy your music!\n\n--\nMoodify\n")

	return buf.String()
}

// Preview renders up to n ranked tracks as numbered "Title — Artist (plays)"
// lines, resolving display names from the events the ranking came from.
// Tracks whose names cannot be resolved fall back to the track ID.
func Preview(ranked []models.TrackRanking, events []models.PlayEvent, n int) []string {
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}

	names := make(map[string]models.PlayEvent, len(events))
	for _, event := range events {
		if _, seen := names[event.TrackID]; !seen {
			names[event.TrackID] = event
		}
	}

	lines := make([]string, 0, n)
	for i, entry := range ranked[:n] {
		label := entry.TrackID
		if event, ok := names[entry.TrackID]; ok && event.TrackName != "" {
			label = fmt.Sprintf("%s — %s", event.TrackName, event.ArtistName)
		}
		lines = append(lines, fmt.Sprintf("%d. %s (%d plays)", i+1, label, entry.PlayCount))
	}
	return lines
}

// ReportText renders the invocation report for terminal output.
func ReportText(report *models.Report) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "status: %s\n", report.Status)
	if report.Component != "" {
		fmt.Fprintf(&buf, "component: %s\n", report.Component)
	}
	fmt.Fprintf(&buf, "detail: %s\n", report.Detail)
	if report.PlaylistURL != "" {
		fmt.Fprintf(&buf, "playlist: %s\n", report.PlaylistURL)
	}
	fmt.Fprintf(&buf, "run: %s\n", report.RunID)

	return buf.String()
}
