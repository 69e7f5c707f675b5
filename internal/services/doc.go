// Package services wraps the external providers the pipeline talks to.
//
// # Spotify
//
// [SpotifyService] implements both [HistoryClient] and [PlaylistPublisher]
// against the Spotify Web API. Authentication uses the OAuth2 refresh-token
// grant via [golang.org/x/oauth2]; the oauth2 client refreshes expired
// access tokens transparently and caches them in memory for the duration of
// one invocation. A rate limiter sits in front of every request and 429
// responses surface their Retry-After hint to the retry policy.
//
// # Email
//
// [SESNotifier] implements [Notifier] on AWS SES. It sends exactly one
// templated reminder per call and returns the provider message ID.
//
// Both services take an explicit [shared.RetryPolicy]; transient failures
// are retried here, every other error propagates unmodified to the
// orchestrator.
package services
