// Package verifier dials a deployed certificate over TLS — optionally
// behind a STARTTLS upgrade — and checks the peer's leaf, chain, and OCSP
// staple against a local CertificateItem.
package verifier
