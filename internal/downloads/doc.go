// Package downloads follows a backend download from request to outcome.
//
// The backend acknowledges startDownload and then reports progress through
// unsolicited DownloadProgress, DownloadComplete and DownloadError events.
// Tracker holds a context-scoped event subscription for exactly the lifetime
// of one download so listeners never outlive the flow that needed them.
// Events carry no correlation id, so one download runs at a time per session.
package downloads
