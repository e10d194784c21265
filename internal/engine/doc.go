// Package engine drives the cache lifecycle: install the core resource set
// into the staging area, migrate the live area to the embedded manifest,
// then claim active status and service control messages. The three phases
// run strictly in order (install → activate → serve) with no re-entry; each
// phase is a blocking precondition of the next. A migration fault resets all
// three cache areas unconditionally so the next activation behaves as a cold
// start instead of serving a torn cache.
package engine
