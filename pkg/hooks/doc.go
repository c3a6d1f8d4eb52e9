// Package hooks implements the named external-command runner that the
// orchestrator and ACME client use to notify operators at lifecycle
// points (challenge presented/cleared, certificate issued). Hook
// invocations never abort the caller: a missing substitution key or a
// non-zero exit is logged and the remaining queue still runs.
package hooks
