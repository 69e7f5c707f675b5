// Package repositories implements the optional run cache.
//
// The cache stores a fingerprint of the most recently published ranking per
// playlist name so an unchanged history window can skip republishing and the
// reminder email. It is never required for correctness: a nil cache disables
// the optimization and cache errors are logged, not fatal.
//
// Two backends are provided: SQLite for local/cron deployments and Redis for
// serverless ones, selected by configuration.
package repositories
