package cryptoadapter

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/go-acme/lego/v4/certcrypto"
)

// KeyType identifies the public-key algorithm of a PrivateKey or
// Certificate, extensible beyond the two values the manager currently
// requests.
type KeyType string

const (
	KeyTypeRSA   KeyType = "rsa"
	KeyTypeECDSA KeyType = "ecdsa"
)

// KeyParams describes the concrete parameters for a requested key: bit
// size for RSA, curve name for ECDSA.
type KeyParams struct {
	KeyType    KeyType
	RSABits    int    // 2048, 3072, 4096
	ECDSACurve string // "P256", "P384"
}

// legoKeyType maps our KeyParams onto the lego key-type tag consumed by
// certcrypto.GeneratePrivateKey/GenerateCSR.
func (p KeyParams) legoKeyType() (certcrypto.KeyType, error) {
	switch p.KeyType {
	case KeyTypeRSA:
		switch p.RSABits {
		case 2048:
			return certcrypto.RSA2048, nil
		case 3072:
			return certcrypto.RSA3072, nil
		case 4096:
			return certcrypto.RSA4096, nil
		default:
			return "", fmt.Errorf("cryptoadapter: unsupported RSA key size %d", p.RSABits)
		}
	case KeyTypeECDSA:
		switch p.ECDSACurve {
		case "P256":
			return certcrypto.EC256, nil
		case "P384":
			return certcrypto.EC384, nil
		default:
			return "", fmt.Errorf("cryptoadapter: unsupported ECDSA curve %q", p.ECDSACurve)
		}
	default:
		return "", fmt.Errorf("cryptoadapter: unsupported key type %q", p.KeyType)
	}
}

// PrivateKey is a generated or loaded key together with the parameters and
// encryption state it was produced with. Decoding then encoding a
// PrivateKey with the same passphrase must yield functionally equivalent
// PEM material.
type PrivateKey struct {
	Params    KeyParams
	Encrypted bool
	Signer    crypto.Signer
}

// GeneratePrivateKey creates a fresh key of the requested type.
func GeneratePrivateKey(params KeyParams) (*PrivateKey, error) {
	kt, err := params.legoKeyType()
	if err != nil {
		return nil, err
	}

	raw, err := certcrypto.GeneratePrivateKey(kt)
	if err != nil {
		return nil, fmt.Errorf("cryptoadapter: generate key: %w", err)
	}

	signer, ok := raw.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("cryptoadapter: generated key does not implement crypto.Signer")
	}

	return &PrivateKey{Params: params, Signer: signer}, nil
}

// LoadPrivateKey parses a PEM-encoded key, decrypting it first if it
// carries a passphrase-protected DEK-Info header. A block without DEK-Info
// is parsed as-is whatever passphrase is given; an encrypted block fails to
// load when the passphrase is wrong or empty.
func LoadPrivateKey(pemData []byte, passphrase string) (*PrivateKey, error) {
	der, encrypted, err := decodePrivateKeyPEM(pemData, passphrase)
	if err != nil {
		return nil, err
	}

	raw, err := certcrypto.ParsePEMPrivateKey(der)
	if err != nil {
		// certcrypto.ParsePEMPrivateKey expects PEM, not DER, when the
		// block wasn't encrypted we already have the original bytes.
		raw, err = parsePrivateKeyDER(der)
		if err != nil {
			return nil, fmt.Errorf("cryptoadapter: parse private key: %w", err)
		}
	}

	signer, ok := raw.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("cryptoadapter: loaded key does not implement crypto.Signer")
	}

	return &PrivateKey{
		Params:    paramsFromSigner(signer),
		Encrypted: encrypted,
		Signer:    signer,
	}, nil
}

func parsePrivateKeyDER(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	signer, ok := k.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported PKCS8 key type %T", k)
	}
	return signer, nil
}

// Encode serializes the key to PEM, encrypting it with passphrase when
// non-empty. decode(encode(k, p), p) must reproduce functionally
// equivalent material for any passphrase p, including the empty one.
func (k *PrivateKey) Encode(passphrase string) ([]byte, error) {
	der, blockType, err := marshalSigner(k.Signer)
	if err != nil {
		return nil, err
	}
	return encodePrivateKeyPEM(der, blockType, passphrase)
}

// Public returns the key's public half for CSR/certificate consistency
// checks.
func (k *PrivateKey) Public() crypto.PublicKey {
	return k.Signer.Public()
}
