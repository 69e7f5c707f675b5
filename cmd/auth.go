package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"moodify/internal/server"
	"moodify/internal/services"
	"moodify/internal/shared"
)

// Auth runs the one-time OAuth2 authorization flow and prints the refresh
// token that scheduled runs need.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if config == nil {
		var err error
		if config, err = shared.ReadConfig(cmd.String("config")); err != nil {
			return err
		}
	}

	if config.Spotify.ClientID == "" || config.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: set spotify.client_id and spotify.client_secret before authorizing", shared.ErrConfiguration)
	}

	flow, err := server.NewFlow(services.OAuthConfig(config.Spotify), server.WithLogger(r.logger))
	if err != nil {
		return err
	}

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	token, err := flow.Run(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("authorization complete")

	r.writePlain("\n✓ Authorization successful\n\n")
	r.writePlain("Refresh token:\n%s\n\n", token.RefreshToken)
	r.writePlain("Store it as SPOTIFY_REFRESH_TOKEN in the deployment environment,\n")
	r.writePlain("or as spotify.refresh_token in %s.\n", cmd.String("config"))
	return nil
}

// authCommand mints the long-lived refresh token via the browser.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize with Spotify and mint a refresh token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Auth,
	}
}
