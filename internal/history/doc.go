// Package history provides a bounded two-tier store for generated audio
// clips. Lightweight metadata (text, model, timestamp) lives in an ordered
// JSON index while the audio payloads live in a keyed blob store, and the
// cache keeps both tiers consistent under insertion, eviction, and
// migration from the legacy inline-payload format.
package history
