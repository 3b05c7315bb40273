// Package api provides typed call sites over the IPC gateway.
//
// Each backend message kind gets one Client method that builds the payload,
// picks the call budget and decodes the success data into a DTO. Budgets are
// per call site: getPlaybackInfo uses the light budget because the playback
// monitor polls it repeatedly, every other kind uses the general budget.
//
// DTO field names follow the backend wire format: search results keep the
// catalogue's snake_case keys while request payloads use camelCase.
//
// ParseTranslationTitle splits "Name (12 эп.)" style labels when the backend
// did not supply an episode count.
package api
