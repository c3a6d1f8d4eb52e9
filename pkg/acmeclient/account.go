package acmeclient

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
)

// registrationFile is the name of the persisted registration descriptor
// under the resource directory, spec.md §4.3 step 1.
const registrationFile = "registration.json"

// accountKeyFile is the name of the current-format PEM account key.
const accountKeyFile = "client.key"

// legacyJWKFile is the pre-migration JWK account key spec.md §4.3 step 3
// knows how to read and retire.
const legacyJWKFile = "client_key.json"

// Registration is the on-disk descriptor for an ACME account: enough to
// resume using an existing account without re-registering.
type Registration struct {
	URI   string `json:"uri"`
	Email string `json:"email,omitempty"`
	KID   string `json:"kid"`
}

// SameOrigin reports whether reg was issued by the directory at
// directoryURL, comparing scheme and host only so path differences between
// a directory's root and its resource URLs don't trigger a false
// mismatch (spec.md invariant 4).
func (reg Registration) SameOrigin(directoryURL string) bool {
	if reg.URI == "" {
		return false
	}
	regURL, err := url.Parse(reg.URI)
	if err != nil {
		return false
	}
	dirURL, err := url.Parse(directoryURL)
	if err != nil {
		return false
	}
	return regURL.Scheme == dirURL.Scheme && regURL.Host == dirURL.Host
}

// loadRegistration reads the persisted descriptor, returning (nil, nil) if
// it does not exist.
func loadRegistration(resourceDir string) (*Registration, error) {
	data, err := os.ReadFile(filepath.Join(resourceDir, registrationFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("acmeclient: read registration: %w", err)
	}
	var reg Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("acmeclient: parse registration: %w", err)
	}
	return &reg, nil
}

func encodeRegistration(reg Registration) ([]byte, error) {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("acmeclient: marshal registration: %w", err)
	}
	return data, nil
}

// legacyJWK is the RSA JWK shape written by the predecessor tool this
// manager's resource directory may still carry. Only the fields needed to
// reconstruct an *rsa.PrivateKey are modeled.
type legacyJWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d"`
	P   string `json:"p"`
	Q   string `json:"q"`
}

func jwkBigInt(field string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(field)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// parseLegacyJWK reconstructs an RSA private key from the predecessor
// tool's client_key.json, spec.md §4.3 step 3's migration path.
func parseLegacyJWK(data []byte) (*rsa.PrivateKey, error) {
	var jwk legacyJWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("acmeclient: parse legacy jwk: %w", err)
	}
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("acmeclient: legacy jwk has unsupported kty %q", jwk.Kty)
	}

	n, err := jwkBigInt(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: legacy jwk n: %w", err)
	}
	e, err := jwkBigInt(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: legacy jwk e: %w", err)
	}
	d, err := jwkBigInt(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: legacy jwk d: %w", err)
	}
	p, err := jwkBigInt(jwk.P)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: legacy jwk p: %w", err)
	}
	q, err := jwkBigInt(jwk.Q)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: legacy jwk q: %w", err)
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("acmeclient: legacy jwk key invalid: %w", err)
	}
	key.Precompute()
	return key, nil
}
