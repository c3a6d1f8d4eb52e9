// Package txfile implements the transactional filesystem commit engine:
// a group of file writes and archivals is applied such that either every
// file reaches its new state, or the prior state is fully restored.
//
// The three operation kinds (Write, ArchiveAndWrite, Archive) are modelled
// as one Operation struct with a Kind tag rather than an interface
// hierarchy, since apply/revert/cleanup share almost all of their logic and
// only differ in whether a supplanted file is archived or discarded. This
// mirrors the apply-then-roll-back-on-error shape already used by the
// teacher repository's secret-mounting code, generalized from "mount
// secrets for one task" to "commit an arbitrary group of files".
package txfile
