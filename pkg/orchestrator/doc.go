// Package orchestrator drives one pass over a set of CertificateContexts:
// deciding whether each key-type item needs issuing, renewing, or
// rotating, obtaining new material over ACME when it does, committing it
// to disk, firing lifecycle hooks, and verifying the deployed result.
package orchestrator
