// Package gateway turns the host's fire-and-forget message transport into
// awaitable calls.
//
// A Gateway owns the table of pending calls. Each outbound call gets a unique
// correlation id, is framed as {id, type, data} and handed to the host
// Transport; the call then settles exactly once, either when Deliver sees an
// inbound envelope carrying the same id or when the call's budget expires.
// Inbound envelopes that match no pending call (push notifications such as
// download progress, or responses that arrived after their call timed out)
// are published to every registered listener instead.
//
// Construct one Gateway per process and pass it to call sites explicitly; the
// readiness gate (AwaitReady) must succeed before calls are issued, otherwise
// they fail with ErrTransportUnavailable without touching the transport.
package gateway
