package orchestrator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
	"github.com/cuemby/certmgr/pkg/log"
)

func selfSignedDER(t *testing.T, cn string, notAfter time.Time) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return der
}

func TestParseChainParsesLeafAndIntermediates(t *testing.T) {
	leafDER := selfSignedDER(t, "leaf.example.com", time.Now().Add(30*24*time.Hour))
	interDER := selfSignedDER(t, "intermediate.example.com", time.Now().Add(365*24*time.Hour))

	leaf, chain, err := parseChain([][]byte{leafDER, interDER})
	if err != nil {
		t.Fatalf("parseChain: %v", err)
	}
	if leaf.CommonName != "leaf.example.com" {
		t.Fatalf("unexpected leaf CN: %s", leaf.CommonName)
	}
	if len(chain) != 1 || chain[0].CommonName != "intermediate.example.com" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
}

func TestPerDomainChallengeDirCoversAllNames(t *testing.T) {
	spec := certctx.CertificateSpec{
		CommonName:       "example.com",
		AltNames:         []string{"www.example.com", "api.example.com"},
		HTTPChallengeDir: "/var/www/.well-known/acme-challenge",
	}
	dirs := perDomainChallengeDir(spec)
	for _, name := range []string{"example.com", "www.example.com", "api.example.com"} {
		if dirs[name] != spec.HTTPChallengeDir {
			t.Fatalf("missing or wrong challenge dir for %s: %v", name, dirs)
		}
	}
}

func TestBuildOrderSpecUsesItemKeyParamsNotAHardcodedDefault(t *testing.T) {
	spec := certctx.CertificateSpec{
		CommonName: "ecdsa.example.com",
		AltNames:   []string{"www.ecdsa.example.com"},
		KeyTypes:   []cryptoadapter.KeyType{cryptoadapter.KeyTypeRSA, cryptoadapter.KeyTypeECDSA},
		RSABits:    3072,
		ECDSACurve: "P384",
	}

	rsaItem := &certctx.CertificateItem{KeyType: cryptoadapter.KeyTypeRSA}
	rsaOrder := buildOrderSpec(spec, rsaItem)
	if rsaOrder.KeyParams.KeyType != cryptoadapter.KeyTypeRSA || rsaOrder.KeyParams.RSABits != 3072 {
		t.Fatalf("RSA order got KeyParams %+v, want RSA/3072", rsaOrder.KeyParams)
	}

	ecdsaItem := &certctx.CertificateItem{KeyType: cryptoadapter.KeyTypeECDSA}
	ecdsaOrder := buildOrderSpec(spec, ecdsaItem)
	if ecdsaOrder.KeyParams.KeyType != cryptoadapter.KeyTypeECDSA || ecdsaOrder.KeyParams.ECDSACurve != "P384" {
		t.Fatalf("ECDSA order got KeyParams %+v, want ECDSA/P384", ecdsaOrder.KeyParams)
	}

	key, err := cryptoadapter.GeneratePrivateKey(ecdsaOrder.KeyParams)
	if err != nil {
		t.Fatalf("GeneratePrivateKey(%+v): %v", ecdsaOrder.KeyParams, err)
	}
	if key.Params.KeyType != cryptoadapter.KeyTypeECDSA {
		t.Fatalf("issued key type = %q, want %q", key.Params.KeyType, cryptoadapter.KeyTypeECDSA)
	}
}

func TestProcessContextNoopSkipsAcmeObtain(t *testing.T) {
	leafDER := selfSignedDER(t, "noop.example.com", time.Now().Add(60*24*time.Hour))
	leaf, err := cryptoadapter.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	key, err := cryptoadapter.GeneratePrivateKey(cryptoadapter.KeyParams{KeyType: cryptoadapter.KeyTypeRSA, RSABits: 2048})
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	spec := certctx.CertificateSpec{
		Name:          "noop-cert",
		CommonName:    "noop.example.com",
		AltNames:      []string{"noop.example.com"},
		KeyTypes:      []cryptoadapter.KeyType{cryptoadapter.KeyTypeRSA},
		RSABits:       2048,
		RenewalWindow: 7 * 24 * time.Hour,
	}
	cc := certctx.NewCertificateContext(spec)
	cc.Items[cryptoadapter.KeyTypeRSA] = &certctx.CertificateItem{
		KeyType:     cryptoadapter.KeyTypeRSA,
		PrivateKey:  key,
		Certificate: leaf,
		IssuedAt:    time.Now(),
	}

	o := &Orchestrator{logger: log.WithComponent("orchestrator_test")}
	result := o.processContext(context.Background(), cc)

	if result.Fatal {
		t.Fatalf("expected non-fatal result, got fatal: %+v", result)
	}
	if len(result.Items) != 1 || result.Items[0].Decision != certctx.DecisionNoop {
		t.Fatalf("expected a single noop item, got %+v", result.Items)
	}
	if result.Items[0].Err != nil {
		t.Fatalf("noop item should carry no error: %v", result.Items[0].Err)
	}
}
