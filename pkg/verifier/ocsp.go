package verifier

import (
	"fmt"
	"time"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// OCSPPolicy bounds how many times a missing staple is retried for a
// must-staple certificate, spec.md §4.5 step 6.
type OCSPPolicy struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultOCSPPolicy mirrors a conservative default when configuration
// supplies none.
var DefaultOCSPPolicy = OCSPPolicy{MaxAttempts: 3, RetryDelay: 2 * time.Second}

// classifyStaple decodes a raw stapled OCSP response against issuer.
func classifyStaple(raw []byte, issuer *cryptoadapter.Certificate) (cryptoadapter.OCSPStatus, error) {
	status, err := cryptoadapter.ParseOCSPResponse(raw, issuer)
	if err != nil {
		return "", fmt.Errorf("verifier: parse OCSP staple: %w", err)
	}
	return status, nil
}
