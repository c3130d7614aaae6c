// Package client is a Go client for the burrow HTTP API, used by the CLI.
//
// Errors returned by the server keep their kind across the wire, so callers
// can test them with errors.Is against the types.Err* sentinels.
package client
