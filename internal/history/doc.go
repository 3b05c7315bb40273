// Package history keeps a local SQLite record of played episodes and
// download outcomes.
//
// The store lives at <state_dir>/history.db. Schema changes ship as numbered
// files under migrations/ and are applied in order inside one transaction on
// Open. Timestamps are stored as RFC3339 UTC strings.
package history
