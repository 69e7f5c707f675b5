package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"moodify/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	runner := NewRunner(RunnerOpts{Logger: logger})

	if runningInLambda() {
		lambda.Start(runner.HandleScheduled)
		return
	}

	app := &cli.Command{
		Name:     "moodify",
		Usage:    "Publish a weekly playlist of your most played Spotify tracks",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
