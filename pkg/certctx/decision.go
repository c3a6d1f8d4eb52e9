package certctx

import "time"

// Decision is the action the orchestrator should take for one
// CertificateItem during a processing pass.
type Decision string

const (
	DecisionIssue  Decision = "issue"
	DecisionRenew  Decision = "renew"
	DecisionRotate Decision = "rotate"
	DecisionNoop   Decision = "noop"
)

// Decide evaluates spec.md §4.4's decision table for item against now.
func Decide(spec CertificateSpec, item *CertificateItem, now time.Time) Decision {
	if item.Certificate == nil {
		return DecisionIssue
	}

	// now + renewal_window >= not_after
	if !now.Add(spec.RenewalWindow).Before(item.Certificate.NotAfter) {
		return DecisionRenew
	}

	if keyParamsChanged(spec, item) {
		return DecisionRenew
	}

	if sanSetChanged(spec, item) {
		return DecisionRenew
	}

	if spec.MustStaple != item.Certificate.HasMustStaple {
		return DecisionRenew
	}

	if spec.KeyRotationInterval > 0 && !item.IssuedAt.IsZero() && now.Sub(item.IssuedAt) >= spec.KeyRotationInterval {
		return DecisionRotate
	}

	return DecisionNoop
}

func keyParamsChanged(spec CertificateSpec, item *CertificateItem) bool {
	if item.PrivateKey == nil {
		return true
	}
	want := spec.KeyParams(item.KeyType)
	got := item.PrivateKey.Params
	if want.KeyType != got.KeyType {
		return true
	}
	switch want.KeyType {
	case "rsa":
		return want.RSABits != got.RSABits
	case "ecdsa":
		return want.ECDSACurve != got.ECDSACurve
	default:
		return false
	}
}

func sanSetChanged(spec CertificateSpec, item *CertificateItem) bool {
	want := map[string]bool{}
	for _, n := range spec.AltNames {
		want[n] = true
	}
	got := map[string]bool{}
	for _, n := range item.Certificate.SANs {
		got[n] = true
	}
	if len(want) != len(got) {
		return true
	}
	for n := range want {
		if !got[n] {
			return true
		}
	}
	return false
}
