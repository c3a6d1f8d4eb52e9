package cryptoadapter

import (
	"fmt"

	"golang.org/x/crypto/ocsp"
)

// OCSPStatus is the decoded revocation status of an OCSP response, matching
// the (good|revoked|unknown) vocabulary spec'd for the verifier.
type OCSPStatus string

const (
	OCSPGood    OCSPStatus = "good"
	OCSPRevoked OCSPStatus = "revoked"
	OCSPUnknown OCSPStatus = "unknown"
)

// BuildOCSPRequest builds an unsigned DER-encoded OCSP request for leaf,
// identifying it by hashes of issuer's name and public key per RFC 6960.
func BuildOCSPRequest(leaf, issuer *Certificate) ([]byte, error) {
	req, err := ocsp.CreateRequest(leaf.parsed, issuer.parsed, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoadapter: build OCSP request: %w", err)
	}
	return req, nil
}

// ParseOCSPResponse decodes a raw OCSP response (e.g. a TLS staple) and
// extracts its status, verifying it against issuer.
func ParseOCSPResponse(raw []byte, issuer *Certificate) (OCSPStatus, error) {
	resp, err := ocsp.ParseResponseForCert(raw, nil, issuer.parsed)
	if err != nil {
		return "", fmt.Errorf("cryptoadapter: parse OCSP response: %w", err)
	}

	switch resp.Status {
	case ocsp.Good:
		return OCSPGood, nil
	case ocsp.Revoked:
		return OCSPRevoked, nil
	default:
		return OCSPUnknown, nil
	}
}
