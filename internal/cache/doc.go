// Package cache provides a content-addressed store for LLM analysis
// artifacts.
//
// Inputs are normalized and fingerprinted (SHA-256 of the canonical
// form); the fingerprint, prefixed by artifact kind, is the storage key.
// Each record carries the source content hash, creation and last-used
// timestamps, a use counter incremented on every hit, and a set of
// descriptive tags. Records survive process restarts in a SQLite
// database; an in-memory backend serves tests and cache-disabled runs.
//
// Lookups that find nothing are misses, not errors. Storage failures
// are reported as STORAGE errors and are recovered by callers as cache
// misses, so a broken cache never fails an analysis request.
package cache
