package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"moodify/internal/formatter"
	"moodify/internal/tasks"
)

// RunPipeline executes one full pipeline invocation from the CLI.
func (r *Runner) RunPipeline(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if name := cmd.String("name"); name != "" {
		config.Playlist.NameTemplate = name
	}
	if top := cmd.Int("top"); top > 0 {
		config.Playlist.TopN = int(top)
	}
	if days := cmd.Int("window"); days > 0 {
		config.Playlist.LookbackDays = int(days)
	}
	dryRun := cmd.Bool("dry-run")

	if err := config.Validate(); err != nil {
		return err
	}

	engine, cleanup, err := r.buildEngine(ctx, config, dryRun, cmd.Bool("notify-dry-run"))
	if err != nil {
		return err
	}
	defer cleanup()

	useJSON := cmd.Bool("json")

	progressCh := make(chan tasks.ProgressUpdate, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if useJSON {
				continue
			}
			switch update.State {
			case tasks.Done:
				r.writePlain("✓ %s\n", update.Message)
			case tasks.Failed:
				r.writePlain("✗ %s\n", update.Message)
			default:
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()

	report := engine.Run(ctx, progressCh)
	close(progressCh)
	<-done

	if useJSON {
		if err := r.writeJSON(report, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else {
		r.writePlain("\n%s", formatter.ReportText(report))
	}

	if report.Failed() {
		return fmt.Errorf("run %s failed in %s: %s", report.RunID, report.Component, report.Detail)
	}
	return nil
}

// runCommand executes the weekly playlist pipeline.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Fetch listening history, publish the weekly playlist, send the reminder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Playlist name template, overriding configuration",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "Number of tracks to keep",
			},
			&cli.IntFlag{
				Name:  "window",
				Usage: "Lookback window in days",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Rank and preview without publishing or emailing",
			},
			&cli.BoolFlag{
				Name:  "notify-dry-run",
				Usage: "Send a marked test reminder during a dry run",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the run report as JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Action: r.RunPipeline,
	}
}
