// Package main hosts the kamiview CLI entrypoint and command graph.
//
// Every command that talks to the backend opens one session, which connects
// to the bridge socket, waits for it to become ready and exposes the typed
// API client. Commands print human-readable tables and status lines by
// default and structured JSON with --json.
//
// Keep this package thin: behavior belongs in the internal packages and is
// only surfaced here.
package main
