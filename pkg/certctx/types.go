package certctx

import (
	"crypto"
	"fmt"
	"time"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// VerifyTarget names one deployed endpoint the verifier should dial after
// a certificate is issued or renewed.
type VerifyTarget struct {
	Hosts     []string
	Port      int
	StartTLS  string // "", "smtp", "pop3", "imap", "ftp", "xmpp", "sieve"
	KeyTypes  []cryptoadapter.KeyType
}

// PassphrasePolicy controls whether private keys are stored encrypted and
// under which label a passphrase is derived.
type PassphrasePolicy struct {
	Encrypt bool
	Label   string
}

// CertificateSpec is the configuration for one logical certificate: the
// names it covers, the key types requested, where to verify it once
// issued, and the renewal/rotation policy.
type CertificateSpec struct {
	Name                string
	CommonName          string
	AltNames            []string
	KeyTypes            []cryptoadapter.KeyType
	RSABits             int
	ECDSACurve          string
	VerifyTargets       []VerifyTarget
	HTTPChallengeDir    string
	PassphrasePolicy    PassphrasePolicy
	MustStaple          bool
	RenewalWindow       time.Duration
	KeyRotationInterval time.Duration
}

// KeyParams returns the key generation parameters this spec requests for
// keyType.
func (s CertificateSpec) KeyParams(keyType cryptoadapter.KeyType) cryptoadapter.KeyParams {
	return cryptoadapter.KeyParams{
		KeyType:    keyType,
		RSABits:    s.RSABits,
		ECDSACurve: s.ECDSACurve,
	}
}

// CertificateItem is one key-type variant of a CertificateContext: the
// tuple (key_type, private_key, certificate, chain, ocsp_response).
// Invariant: if Certificate is non-nil, its public key equals
// PrivateKey's public key.
type CertificateItem struct {
	KeyType      cryptoadapter.KeyType
	PrivateKey   *cryptoadapter.PrivateKey
	Certificate  *cryptoadapter.Certificate
	Chain        cryptoadapter.Chain
	OCSPResponse []byte
	IssuedAt     time.Time
}

// Validate checks the key <-> cert consistency invariant.
func (item *CertificateItem) Validate() error {
	if item.Certificate == nil || item.PrivateKey == nil {
		return nil
	}

	certPub := item.Certificate.Parsed().PublicKey
	keyPub := item.PrivateKey.Public()

	eq, ok := certPub.(interface{ Equal(x crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("certctx: certificate public key type %T does not support comparison", certPub)
	}
	if !eq.Equal(keyPub) {
		return fmt.Errorf("certctx: certificate public key does not match private key for %s/%s", item.KeyType, item.Certificate.CommonName)
	}
	return nil
}

// CertificateContext is a named logical certificate with one
// CertificateItem per requested key type. A CertificateContext exclusively
// owns its Items; the orchestrator only ever borrows one during a
// processing pass.
type CertificateContext struct {
	Spec  CertificateSpec
	Items map[cryptoadapter.KeyType]*CertificateItem
}

// NewCertificateContext creates an empty context for spec, with one empty
// item per requested key type.
func NewCertificateContext(spec CertificateSpec) *CertificateContext {
	ctx := &CertificateContext{
		Spec:  spec,
		Items: make(map[cryptoadapter.KeyType]*CertificateItem),
	}
	for _, kt := range spec.KeyTypes {
		ctx.Items[kt] = &CertificateItem{KeyType: kt}
	}
	return ctx
}
