package orchestrator

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

func writeTestBundle(t *testing.T, certDir, name string) (*cryptoadapter.Certificate, *cryptoadapter.PrivateKey) {
	t.Helper()

	key, err := cryptoadapter.GeneratePrivateKey(cryptoadapter.KeyParams{KeyType: cryptoadapter.KeyTypeRSA, RSABits: 2048})
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key.Signer)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := cryptoadapter.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	keyPEM, err := key.Encode("")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(keyPath(certDir, name, "rsa"), keyPEM, 0o600); err != nil {
		t.Fatalf("WriteFile key: %v", err)
	}
	if err := os.WriteFile(bundlePath(certDir, name, "rsa"), cryptoadapter.EncodeCertificateChainPEM(cert, nil), 0o644); err != nil {
		t.Fatalf("WriteFile bundle: %v", err)
	}

	return cert, key
}

func TestLoadContextPopulatesExistingMaterial(t *testing.T) {
	certDir := t.TempDir()
	cert, _ := writeTestBundle(t, certDir, "existing.example.com")

	o := &Orchestrator{CertDir: certDir}
	spec := certctx.CertificateSpec{
		Name:       "existing.example.com",
		CommonName: "existing.example.com",
		KeyTypes:   []cryptoadapter.KeyType{cryptoadapter.KeyTypeRSA},
	}

	cc, err := o.LoadContext(spec)
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	item := cc.Items[cryptoadapter.KeyTypeRSA]
	if item.Certificate == nil || item.PrivateKey == nil {
		t.Fatalf("expected populated item, got %+v", item)
	}
	if item.Certificate.CommonName != cert.CommonName {
		t.Errorf("CommonName = %q, want %q", item.Certificate.CommonName, cert.CommonName)
	}
}

func TestLoadContextEmptyForUnissuedCertificate(t *testing.T) {
	certDir := t.TempDir()
	o := &Orchestrator{CertDir: certDir}
	spec := certctx.CertificateSpec{
		Name:       "new.example.com",
		CommonName: "new.example.com",
		KeyTypes:   []cryptoadapter.KeyType{cryptoadapter.KeyTypeRSA},
	}

	cc, err := o.LoadContext(spec)
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	item := cc.Items[cryptoadapter.KeyTypeRSA]
	if item.Certificate != nil || item.PrivateKey != nil {
		t.Fatalf("expected empty item for unissued certificate, got %+v", item)
	}
}

func TestLoadContextRejectsMismatchedKeyAndCertificate(t *testing.T) {
	certDir := t.TempDir()
	writeTestBundle(t, certDir, "a.example.com")
	writeTestBundle(t, certDir, "b.example.com")

	// Swap the certificate bundle between two names so the on-disk key no
	// longer matches the on-disk certificate for "a.example.com".
	aCert, err := os.ReadFile(bundlePath(certDir, "b.example.com", "rsa"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(bundlePath(certDir, "a.example.com", "rsa"), aCert, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	o := &Orchestrator{CertDir: certDir}
	spec := certctx.CertificateSpec{
		Name:       "a.example.com",
		CommonName: "a.example.com",
		KeyTypes:   []cryptoadapter.KeyType{cryptoadapter.KeyTypeRSA},
	}

	if _, err := o.LoadContext(spec); err == nil {
		t.Fatal("expected LoadContext to reject mismatched key/certificate pair")
	}
}
