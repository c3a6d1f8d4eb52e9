package cryptoadapter

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"
)

func TestGeneratePrivateKeyRSAAndECDSA(t *testing.T) {
	tests := []KeyParams{
		{KeyType: KeyTypeRSA, RSABits: 2048},
		{KeyType: KeyTypeECDSA, ECDSACurve: "P256"},
	}

	for _, params := range tests {
		key, err := GeneratePrivateKey(params)
		if err != nil {
			t.Fatalf("GeneratePrivateKey(%+v): %v", params, err)
		}
		if key.Signer.Public() == nil {
			t.Fatalf("GeneratePrivateKey(%+v): nil public key", params)
		}
	}
}

func TestPrivateKeyEncodeDecodeRoundTrip(t *testing.T) {
	for _, passphrase := range []string{"", "correct horse battery staple"} {
		key, err := GeneratePrivateKey(KeyParams{KeyType: KeyTypeRSA, RSABits: 2048})
		if err != nil {
			t.Fatalf("GeneratePrivateKey: %v", err)
		}

		encoded, err := key.Encode(passphrase)
		if err != nil {
			t.Fatalf("Encode(%q): %v", passphrase, err)
		}

		decoded, err := LoadPrivateKey(encoded, passphrase)
		if err != nil {
			t.Fatalf("LoadPrivateKey(%q): %v", passphrase, err)
		}

		if decoded.Encrypted != (passphrase != "") {
			t.Errorf("passphrase %q: Encrypted = %v, want %v", passphrase, decoded.Encrypted, passphrase != "")
		}

		type equaler interface {
			Equal(x crypto.PublicKey) bool
		}
		if !decoded.Signer.Public().(equaler).Equal(key.Signer.Public()) {
			t.Errorf("passphrase %q: decoded public key does not match original", passphrase)
		}
	}
}

func TestLoadPrivateKeyWrongPassphrase(t *testing.T) {
	key, err := GeneratePrivateKey(KeyParams{KeyType: KeyTypeRSA, RSABits: 2048})
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	encoded, err := key.Encode("right-passphrase")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := LoadPrivateKey(encoded, "wrong-passphrase"); err == nil {
		t.Fatalf("LoadPrivateKey with wrong passphrase: expected error, got nil")
	}
}

func mustSelfSignedCert(t *testing.T, mustStaple bool, commonName string, sans []string) *Certificate {
	t.Helper()
	key, err := GeneratePrivateKey(KeyParams{KeyType: KeyTypeRSA, RSABits: 2048})
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     sans,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		OCSPServer:   []string{"http://ocsp.example.com"},
	}

	if mustStaple {
		val, err := asn1.Marshal([]int{ocspMustStapleFeature})
		if err != nil {
			t.Fatalf("asn1.Marshal: %v", err)
		}
		tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, pkix.Extension{
			Id:    tlsFeatureExtensionOID,
			Value: val,
		})
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key.Signer)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}

	cert, err := ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert
}

func TestMustStapleDetection(t *testing.T) {
	withFeature := mustSelfSignedCert(t, true, "staple.example.com", []string{"staple.example.com"})
	if !withFeature.HasMustStaple {
		t.Errorf("expected HasMustStaple=true for certificate carrying the TLS Feature extension")
	}

	without := mustSelfSignedCert(t, false, "plain.example.com", []string{"plain.example.com"})
	if without.HasMustStaple {
		t.Errorf("expected HasMustStaple=false when the TLS Feature extension is absent")
	}
}

func TestParseCertificateChainPEMRoundTrip(t *testing.T) {
	leaf := mustSelfSignedCert(t, false, "example.com", []string{"example.com", "www.example.com"})
	intermediate := mustSelfSignedCert(t, false, "Intermediate CA", nil)

	bundle := EncodeCertificateChainPEM(leaf, Chain{intermediate})

	parsedLeaf, chain, err := ParseCertificateChainPEM(bundle)
	if err != nil {
		t.Fatalf("ParseCertificateChainPEM: %v", err)
	}

	if parsedLeaf.CommonName != "example.com" {
		t.Errorf("leaf CommonName = %q, want example.com", parsedLeaf.CommonName)
	}
	if len(chain) != 1 || chain[0].CommonName != "Intermediate CA" {
		t.Errorf("unexpected chain: %+v", chain)
	}
}

func TestMemoProviderCachesLastLabel(t *testing.T) {
	calls := 0
	provider := NewMemoProvider(func(label string, createIfMissing bool) (string, error) {
		calls++
		return "secret-for-" + label, nil
	})

	first, err := provider.Derive("account", true)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	second, err := provider.Derive("account", true)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if first != second {
		t.Errorf("expected memoized result, got %q then %q", first, second)
	}
	if calls != 1 {
		t.Errorf("derive function called %d times, want 1", calls)
	}

	if _, err := provider.Derive("other", true); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if calls != 2 {
		t.Errorf("derive function called %d times after second label, want 2", calls)
	}
}
