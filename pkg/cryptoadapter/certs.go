package cryptoadapter

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"time"
)

// tlsFeatureExtensionOID is the TLS Feature extension (RFC 7633) used to
// signal OCSP must-staple. Presence of status_request (5) in the feature
// list is what has_ocsp_must_staple derives from.
var tlsFeatureExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 24}

const ocspMustStapleFeature = 5

// Certificate is a parsed X.509 leaf with the derived views the manager's
// decision logic needs, so callers never have to re-walk the x509.Certificate
// extension list themselves.
type Certificate struct {
	Raw           []byte // DER
	CommonName    string
	SANs          []string
	NotBefore     time.Time
	NotAfter      time.Time
	Issuer        string
	OCSPServer    string
	HasMustStaple bool

	parsed *x509.Certificate
}

// Parsed returns the underlying x509.Certificate for callers (e.g. the
// verifier) that need full standard-library access.
func (c *Certificate) Parsed() *x509.Certificate { return c.parsed }

// ParseCertificate parses a single DER-encoded certificate.
func ParseCertificate(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("cryptoadapter: parse certificate: %w", err)
	}
	return fromX509(cert), nil
}

func fromX509(cert *x509.Certificate) *Certificate {
	var ocspServer string
	if len(cert.OCSPServer) > 0 {
		ocspServer = cert.OCSPServer[0]
	}

	return &Certificate{
		Raw:           cert.Raw,
		CommonName:    cert.Subject.CommonName,
		SANs:          append([]string(nil), cert.DNSNames...),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		Issuer:        cert.Issuer.CommonName,
		OCSPServer:    ocspServer,
		HasMustStaple: hasMustStaple(cert),
		parsed:        cert,
	}
}

func hasMustStaple(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(tlsFeatureExtensionOID) {
			continue
		}
		var features []int
		if _, err := asn1.Unmarshal(ext.Value, &features); err != nil {
			continue
		}
		for _, f := range features {
			if f == ocspMustStapleFeature {
				return true
			}
		}
	}
	return false
}

// Chain is an ordered sequence of intermediate certificates from the
// issued leaf (exclusive) up to but not including the trust root.
type Chain []*Certificate

// Validate checks that adjacent pairs in the chain satisfy issuer/subject
// linkage, leaf -> intermediate -> ... -> last intermediate.
func (c Chain) Validate(leaf *Certificate) error {
	prev := leaf
	for i, cert := range c {
		if prev.parsed.Issuer.String() != cert.parsed.Subject.String() {
			return fmt.Errorf("cryptoadapter: chain element %d subject %q does not match issuer %q of previous certificate",
				i, cert.parsed.Subject, prev.parsed.Issuer)
		}
		prev = cert
	}
	return nil
}

// ParseCertificateChainPEM splits a PEM bundle (as written to
// <cert_dir>/<name>.<key_type>.pem) into the leaf certificate and the
// remaining chain, in file order.
func ParseCertificateChainPEM(pemData []byte) (leaf *Certificate, chain Chain, err error) {
	rest := pemData
	var certs []*Certificate
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, err
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("cryptoadapter: no certificates found in PEM bundle")
	}

	return certs[0], Chain(certs[1:]), nil
}

// EncodeCertificateChainPEM concatenates the leaf and chain into the bundle
// format written to disk.
func EncodeCertificateChainPEM(leaf *Certificate, chain Chain) []byte {
	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leaf.Raw})...)
	for _, c := range chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}
