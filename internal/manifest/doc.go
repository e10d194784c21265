// Package manifest holds the build-embedded resource manifest that drives
// cache synchronization: the mapping from logical resource keys to content
// fingerprints, the ordered core subset required before the application shell
// can render, logical-key normalization for incoming requests, and the diff
// rule used by the migrator to decide which cached entries survive a version
// change. The manifest is immutable once loaded; a new engine build ships a
// new manifest value rather than mutating an old one.
package manifest
