package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"moodify/internal/shared"
)

// ConfigInit writes the example configuration file to the given path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		if !cmd.Bool("force") {
			return fmt.Errorf("%w: %s already exists, pass --force to overwrite", shared.ErrConfiguration, configPath)
		}
		if err := os.Remove(configPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", configPath, err)
		}
	}

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", configPath)
	return r.writePlain("✓ Wrote %s\n", configPath)
}

// ConfigShow prints the effective configuration with credentials redacted.
// The config is not validated so a half-configured setup can still be
// inspected.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if config == nil {
		var err error
		if config, err = shared.ReadConfig(cmd.String("config")); err != nil {
			return err
		}
	}

	redacted := *config
	redacted.Spotify.ClientSecret = redact(redacted.Spotify.ClientSecret)
	redacted.Spotify.RefreshToken = redact(redacted.Spotify.RefreshToken)

	return r.writeJSON(redacted, true)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}

// configCommand handles configuration file management.
func configCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the example configuration file",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets redacted",
				Flags:  []cli.Flag{configFlag},
				Action: r.ConfigShow,
			},
		},
	}
}
