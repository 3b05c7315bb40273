// Package config loads, normalizes, and validates kamiview configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the KAMIVIEW_SOCKET environment
// fallback. The Config type centralizes every knob the bridge gateway and the
// CLI need: where the backend socket lives, how long calls may wait, how the
// readiness gate polls, and where logs and local history are kept.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
