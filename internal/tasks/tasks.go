// package tasks implements the weekly playlist pipeline.
//
// The core abstraction is Engine, which sequences history fetch, ranking,
// publishing, and notification, and translates component failures into a
// structured report for the invoking scheduler. State transitions are emitted
// via channels for non-blocking status reporting to the CLI layer.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"moodify/internal/formatter"
	"moodify/internal/models"
	"moodify/internal/ranking"
	"moodify/internal/repositories"
	"moodify/internal/services"
	"moodify/internal/shared"
)

// Component names used in failure reports.
const (
	ComponentHistory   = "HistoryClient"
	ComponentRanking   = "RankingFunction"
	ComponentPublisher = "PlaylistPublisher"
	ComponentNotifier  = "NotificationSender"
)

const previewLines = 5

// Engine runs one invocation of the pipeline. It holds no business logic
// beyond sequencing, error translation, and status reporting; retry policy
// lives inside the injected services.
type Engine struct {
	history   services.HistoryClient
	publisher services.PlaylistPublisher
	notifier  services.Notifier
	cache     repositories.RunCache
	logger    *log.Logger

	playlist     shared.PlaylistConfig
	deadline     time.Duration
	dryRun       bool
	notifyDryRun bool
	now          func() time.Time
}

// EngineOpts contains dependencies and settings for creating an Engine.
type EngineOpts struct {
	History   services.HistoryClient
	Publisher services.PlaylistPublisher
	Notifier  services.Notifier
	Cache     repositories.RunCache // nil disables the run cache
	Logger    *log.Logger
	Playlist  shared.PlaylistConfig
	Deadline  time.Duration
	DryRun    bool
	// NotifyDryRun sends a clearly marked test reminder during a dry run.
	NotifyDryRun bool
	Now          func() time.Time
}

// NewEngine creates an Engine with the provided dependencies.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 2 * time.Minute
	}

	return &Engine{
		history:      opts.History,
		publisher:    opts.Publisher,
		notifier:     opts.Notifier,
		cache:        opts.Cache,
		logger:       opts.Logger,
		playlist:     opts.Playlist,
		deadline:     opts.Deadline,
		dryRun:       opts.DryRun,
		notifyDryRun: opts.NotifyDryRun,
		now:          opts.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run executes the pipeline: FetchingHistory → Ranking → Publishing →
// Notifying → Done. Any fatal component error short-circuits to Failed with
// the remaining steps skipped. The returned report is always non-nil.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate) *models.Report {
	report := &models.Report{RunID: shared.NewRunID(), Status: models.StatusSuccess}
	logger := e.logger.With("run", report.RunID)

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	// FetchingHistory
	e.sendProgress(progress, fetchingHistoryUpdate())
	events, err := e.history.RecentlyPlayed(ctx, e.playlist.Window())
	if err != nil {
		return e.fail(progress, report, ComponentHistory, err)
	}
	logger.Info("fetched listening history", "events", len(events))

	// Ranking
	e.sendProgress(progress, rankingUpdate(len(events)))
	ranked := ranking.TopTracks(events, e.playlist.TopN)
	name := e.playlist.RenderName(e.now())
	spec := ranking.BuildSpec(name, ranked)

	if len(ranked) == 0 {
		// No plays in the window: leave the remote playlist untouched and
		// send no reminder.
		report.Detail = "no plays in lookback window; publishing skipped"
		logger.Info(report.Detail)
		e.sendProgress(progress, doneUpdate(report.Detail))
		return report
	}

	fingerprint := repositories.Fingerprint(ranked)
	if e.skipUnchanged(ctx, logger, name, fingerprint) {
		report.Detail = "history unchanged since last run; publishing skipped"
		logger.Info(report.Detail)
		e.sendProgress(progress, doneUpdate(report.Detail))
		return report
	}

	if e.dryRun {
		for _, line := range formatter.Preview(ranked, events, previewLines) {
			logger.Info("dry run: " + line)
		}
		if e.notifyDryRun {
			preview := &models.Playlist{Name: name + " (dry run)", TrackCount: len(spec.TrackIDs)}
			if messageID, err := e.notifier.SendReminder(ctx, preview); err != nil {
				logger.Warn("dry-run reminder not sent", "err", err)
			} else {
				logger.Info("sent dry-run reminder", "message_id", messageID)
			}
		}
		report.Detail = fmt.Sprintf("dry run: would publish %d tracks to %q", len(spec.TrackIDs), name)
		e.sendProgress(progress, doneUpdate(report.Detail))
		return report
	}

	// Publishing
	e.sendProgress(progress, publishingUpdate(name))
	playlist, err := e.publisher.Publish(ctx, spec)
	if err != nil {
		return e.fail(progress, report, ComponentPublisher, err)
	}
	report.PlaylistURL = playlist.URL
	logger.Info("published playlist", "id", playlist.ID, "tracks", playlist.TrackCount)

	// Notifying: at most one reminder per run.
	e.sendProgress(progress, notifyingUpdate())
	messageID, err := e.notifier.SendReminder(ctx, playlist)
	if err != nil {
		// Partial completion: the playlist is live but the reminder was not
		// sent. Accepted and logged, surfaced as a failure.
		logger.Warn("playlist published but reminder not sent", "url", playlist.URL)
		return e.fail(progress, report, ComponentNotifier, err)
	}
	logger.Info("sent reminder", "message_id", messageID)

	e.recordFingerprint(ctx, logger, name, fingerprint)

	report.Detail = fmt.Sprintf("published %d tracks; reminder sent", playlist.TrackCount)
	e.sendProgress(progress, doneUpdate(report.Detail))
	return report
}

// skipUnchanged consults the optional run cache. Cache failures disable the
// optimization for this run, never the run itself.
func (e *Engine) skipUnchanged(ctx context.Context, logger *log.Logger, name, fingerprint string) bool {
	if e.cache == nil || e.dryRun {
		return false
	}

	previous, ok, err := e.cache.Get(ctx, cacheKey(name))
	if err != nil {
		logger.Warn("run cache read failed", "err", err)
		return false
	}
	return ok && previous == fingerprint
}

// recordFingerprint stores the published ranking's fingerprint. Written only
// after the reminder goes out so a failed run is fully reprocessed next time.
func (e *Engine) recordFingerprint(ctx context.Context, logger *log.Logger, name, fingerprint string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, cacheKey(name), fingerprint, 2*e.playlist.Window()); err != nil {
		logger.Warn("run cache write failed", "err", err)
	}
}

func cacheKey(name string) string {
	return "moodify:fingerprint:" + name
}

// fail translates a component error into the terminal failure report.
func (e *Engine) fail(progress chan<- ProgressUpdate, report *models.Report, component string, err error) *models.Report {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	report.Status = models.StatusFailure
	report.Component = component
	report.Detail = err.Error()

	e.logger.Error("run failed", "component", component, "err", err)
	e.sendProgress(progress, failedUpdate(fmt.Sprintf("%s: %v", component, err)))
	return report
}
