package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"moodify/internal/repositories"
	"moodify/internal/services"
	"moodify/internal/shared"
	"moodify/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	// service overrides, primarily for tests
	history   services.HistoryClient
	publisher services.PlaylistPublisher
	notifier  services.Notifier
	cache     repositories.RunCache
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *shared.Config
	Logger    *log.Logger
	Output    io.Writer
	History   services.HistoryClient
	Publisher services.PlaylistPublisher
	Notifier  services.Notifier
	Cache     repositories.RunCache
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:    opts.Config,
		logger:    opts.Logger,
		output:    opts.Output,
		history:   opts.History,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		cache:     opts.Cache,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, authCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the effective configuration for a command. A config
// injected through RunnerOpts wins; otherwise the --config path is loaded
// with environment variables layered on top.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}
	return shared.LoadConfig(cmd.String("config"))
}

// loadConfigFromEnv resolves configuration from defaults and environment
// variables only, the shape of a scheduled invocation.
func (r *Runner) loadConfigFromEnv() (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}
	return shared.LoadConfig("")
}

// buildEngine assembles the pipeline from configuration, honoring any
// injected service overrides. The returned cleanup closes the run cache.
func (r *Runner) buildEngine(ctx context.Context, config *shared.Config, dryRun, notifyDryRun bool) (*tasks.Engine, func(), error) {
	retry := shared.DefaultRetryPolicy()

	history := r.history
	publisher := r.publisher
	if history == nil || publisher == nil {
		spotify, err := services.NewSpotifyService(ctx, config.Spotify, retry)
		if err != nil {
			return nil, nil, err
		}
		if history == nil {
			history = spotify
		}
		if publisher == nil {
			publisher = spotify
		}
	}

	notifier := r.notifier
	if notifier == nil {
		ses, err := services.NewSESNotifier(ctx, config.Email, retry)
		if err != nil {
			return nil, nil, err
		}
		notifier = ses
	}

	cache := r.cache
	ownsCache := false
	if cache == nil {
		var err error
		if cache, err = repositories.NewRunCache(config.Cache); err != nil {
			return nil, nil, err
		}
		ownsCache = true
	}

	engine := tasks.NewEngine(tasks.EngineOpts{
		History:      history,
		Publisher:    publisher,
		Notifier:     notifier,
		Cache:        cache,
		Logger:       r.logger,
		Playlist:     config.Playlist,
		Deadline:     config.Runtime.Deadline(),
		DryRun:       dryRun,
		NotifyDryRun: notifyDryRun,
	})

	// An injected cache belongs to the caller; close only what was built here.
	cleanup := func() {
		if ownsCache && cache != nil {
			cache.Close()
		}
	}
	return engine, cleanup, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
