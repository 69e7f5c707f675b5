// Package models defines the data model for the weekly playlist generator.
//
// All entities live for a single invocation: play events arrive from the
// history client, rankings are derived from them, and a playlist spec is
// published before the process exits. The only cross-run state is the remote
// playlist itself and the optional run-cache fingerprint.
package models
