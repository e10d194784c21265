// Package cachestore implements the engine's persistent response cache as a
// set of named areas under one storage root: the live area served to the
// application, the staging area that only exists during the install→activate
// transition, and the manifest-record area that checkpoints which manifest
// produced the current live contents. Each entry is a JSON envelope stored
// under the sha1 of its request key and written with temp-file+rename so a
// crash never leaves a torn entry. Operations are atomic per key only; the
// migrator is designed so that anything torn across keys degrades to a
// cold-start-equivalent state.
package cachestore
