package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"

	"moodify/internal/models"
)

// runningInLambda reports whether the process was started by the Lambda
// runtime rather than a terminal.
func runningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// HandleScheduled is the Lambda entry point, invoked by the EventBridge
// schedule. Configuration arrives entirely through the environment. A failed
// run returns an error so the invocation is recorded as failed; the runtime
// then discards the returned report, so it is logged in full first.
func (r *Runner) HandleScheduled(ctx context.Context, event events.EventBridgeEvent) (*models.Report, error) {
	r.logger.Info("scheduled invocation", "source", event.Source, "time", event.Time)

	config, err := r.loadConfigFromEnv()
	if err != nil {
		return r.failScheduled(&models.Report{Status: models.StatusFailure, Detail: err.Error()}, err)
	}

	engine, cleanup, err := r.buildEngine(ctx, config, false, false)
	if err != nil {
		return r.failScheduled(&models.Report{Status: models.StatusFailure, Detail: err.Error()}, err)
	}
	defer cleanup()

	report := engine.Run(ctx, nil)
	if report.Failed() {
		return r.failScheduled(report, fmt.Errorf("run %s failed in %s: %s", report.RunID, report.Component, report.Detail))
	}
	return report, nil
}

// failScheduled logs the structured report before handing the error to the
// runtime, which only keeps the error string.
func (r *Runner) failScheduled(report *models.Report, err error) (*models.Report, error) {
	if payload, jsonErr := json.Marshal(report); jsonErr == nil {
		r.logger.Error("scheduled run failed", "report", string(payload))
	}
	return report, err
}
