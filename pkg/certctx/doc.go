// Package certctx models one logical certificate (a CertificateContext)
// across the key types it is requested in, and the per-key-type bundle
// (CertificateItem) of private key, certificate, chain, and OCSP response
// that makes up each variant.
package certctx
