// Package client talks to the auth server REST API and opens the local
// session database used by the CLI.
//
// Every API failure is returned as *APIError carrying the HTTP status and
// the error code from the response envelope. Transport failures wrap
// ErrUnavailable.
package client
