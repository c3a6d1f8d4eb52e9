// Package acmeclient owns the ACME account key and registration descriptor
// and exposes Obtain and Revoke against an RFC 8555 directory, built on
// golang.org/x/crypto/acme for the wire protocol and
// github.com/go-acme/lego/v4/certcrypto for key generation and CSR
// construction.
package acmeclient
