// Package notifications posts download outcomes to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether alerts are enabled. Delivery failures
// are returned to the caller, which logs them; they never fail a download.
package notifications
