package verifier

import (
	"crypto/tls"
	"strings"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// cipherTag is the substring a TLS 1.2 cipher suite name must contain for
// it to be considered a match for keyType, so the server is steered into
// presenting the bundle for that key algorithm (spec.md §4.5 step 1). Go's
// suite names use the OpenSSL-style "...RSA..."/"...ECDSA..." substrings
// this mirrors.
func cipherTag(keyType cryptoadapter.KeyType) string {
	switch keyType {
	case cryptoadapter.KeyTypeECDSA:
		return "ECDSA"
	default:
		return "RSA"
	}
}

// CipherSuitesForKeyType returns the subset of Go's supported (non-insecure)
// TLS 1.2 cipher suites whose name carries keyType's tag. TLS 1.3 suites
// are algorithm-agnostic and carry no such tag, so they're always
// included — the key-type steering only affects a TLS 1.2 handshake.
func CipherSuitesForKeyType(keyType cryptoadapter.KeyType) []uint16 {
	tag := cipherTag(keyType)

	var suites []uint16
	for _, s := range tls.CipherSuites() {
		if s.Insecure {
			continue
		}
		is13 := false
		for _, v := range s.SupportedVersions {
			if v == tls.VersionTLS13 {
				is13 = true
			}
		}
		if is13 || strings.Contains(s.Name, tag) {
			suites = append(suites, s.ID)
		}
	}
	return suites
}
