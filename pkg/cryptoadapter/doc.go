// Package cryptoadapter wraps the cryptographic primitives that the
// certificate manager core consumes but does not itself implement policy
// over: key generation and (de)serialization, CSR construction, X.509
// parsing, and OCSP request/response handling.
//
// The core treats this package as the "crypto adapter" collaborator named
// in the certificate manager specification: the orchestrator and ACME
// client call through here so the primitive choices (key sizes, curves,
// PEM cipher) live in one place. The one exception is the ACME client's
// legacy JWK migration, which builds an *rsa.PrivateKey with crypto/rsa
// directly.
package cryptoadapter
