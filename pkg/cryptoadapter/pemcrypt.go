package cryptoadapter

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Passphrase-protected PEM private keys follow the same legacy
// DEK-Info/EncryptPEMBlock convention the retrieved moby/moby vendored
// swarmkit CA package uses for its own node key encryption. The stdlib
// marked these deprecated (no AEAD, a dictionary attack on the passphrase
// is cheaper than brute-forcing the key) but it remains the only PEM
// passphrase encoding the standard library offers, and is what the
// certificate manager's own account/item keys are migrated to/from.
const (
	pemTypeRSAPrivateKey = "RSA PRIVATE KEY"
	pemTypeECPrivateKey  = "EC PRIVATE KEY"
)

func marshalSigner(signer crypto.Signer) (der []byte, blockType string, err error) {
	switch key := signer.(type) {
	case *rsa.PrivateKey:
		return x509.MarshalPKCS1PrivateKey(key), pemTypeRSAPrivateKey, nil
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, "", fmt.Errorf("cryptoadapter: marshal ECDSA key: %w", err)
		}
		return der, pemTypeECPrivateKey, nil
	default:
		return nil, "", fmt.Errorf("cryptoadapter: unsupported signer type %T", signer)
	}
}

func paramsFromSigner(signer crypto.Signer) KeyParams {
	switch key := signer.(type) {
	case *rsa.PrivateKey:
		return KeyParams{KeyType: KeyTypeRSA, RSABits: key.N.BitLen()}
	case *ecdsa.PrivateKey:
		// The stdlib names curves "P-256"/"P-384"; KeyParams uses "P256"/"P384".
		curve := key.Curve.Params().Name
		switch curve {
		case "P-256":
			curve = "P256"
		case "P-384":
			curve = "P384"
		}
		return KeyParams{KeyType: KeyTypeECDSA, ECDSACurve: curve}
	default:
		return KeyParams{}
	}
}

func encodePrivateKeyPEM(der []byte, blockType, passphrase string) ([]byte, error) {
	block := &pem.Block{Type: blockType, Bytes: der}

	if passphrase != "" {
		//nolint:staticcheck // SA1019: only PEM passphrase encoding the stdlib offers.
		encrypted, err := x509.EncryptPEMBlock(rand.Reader, blockType, der, []byte(passphrase), x509.PEMCipherAES256)
		if err != nil {
			return nil, fmt.Errorf("cryptoadapter: encrypt private key: %w", err)
		}
		block = encrypted
	}

	return pem.EncodeToMemory(block), nil
}

// decodePrivateKeyPEM returns the DER payload of a (possibly encrypted) PEM
// private key. It reports whether the block was encrypted so callers can
// track the key's current encryption state.
func decodePrivateKeyPEM(pemData []byte, passphrase string) (der []byte, encrypted bool, err error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, false, fmt.Errorf("cryptoadapter: no PEM block found in private key")
	}

	//nolint:staticcheck // SA1019: matching EncryptPEMBlock above.
	if !x509.IsEncryptedPEMBlock(block) {
		return block.Bytes, false, nil
	}

	//nolint:staticcheck // SA1019: matching EncryptPEMBlock above.
	der, err = x509.DecryptPEMBlock(block, []byte(passphrase))
	if err != nil {
		return nil, true, fmt.Errorf("cryptoadapter: decrypt private key (wrong passphrase?): %w", err)
	}
	return der, true, nil
}
