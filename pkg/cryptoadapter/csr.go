package cryptoadapter

import (
	"fmt"

	"github.com/go-acme/lego/v4/certcrypto"
)

// BuildCSR constructs a PKCS#10 certificate request for the given identifiers,
// signed by key, adding the must-staple TLS Feature extension when
// requested. Delegates to lego's certcrypto.GenerateCSR, the same helper
// the teacher stack already depends on for ACME order finalization.
func BuildCSR(key *PrivateKey, commonName string, altNames []string, mustStaple bool) ([]byte, error) {
	csr, err := certcrypto.GenerateCSR(key.Signer, commonName, altNames, mustStaple)
	if err != nil {
		return nil, fmt.Errorf("cryptoadapter: generate CSR: %w", err)
	}
	return csr, nil
}
