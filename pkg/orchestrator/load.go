package orchestrator

import (
	"fmt"
	"os"

	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// LoadContext builds a CertificateContext for spec and, for each requested
// key type, populates its CertificateItem from whatever key/cert/chain/ocsp
// material is already present under o.CertDir. A key type with no material
// on disk yet gets an empty item, which Decide treats as DecisionIssue.
func (o *Orchestrator) LoadContext(spec certctx.CertificateSpec) (*certctx.CertificateContext, error) {
	cc := certctx.NewCertificateContext(spec)

	for _, kt := range spec.KeyTypes {
		item := cc.Items[kt]

		keyData, err := os.ReadFile(keyPath(o.CertDir, spec.Name, string(kt)))
		switch {
		case err == nil:
			passphrase := ""
			if spec.PassphrasePolicy.Encrypt && o.Passphrase != nil {
				label := spec.PassphrasePolicy.Label
				if label == "" {
					label = spec.Name
				}
				p, derr := o.Passphrase.Derive(label, false)
				if derr != nil {
					return nil, fmt.Errorf("orchestrator: derive passphrase for %s (%s): %w", spec.Name, kt, derr)
				}
				passphrase = p
			}
			key, kerr := cryptoadapter.LoadPrivateKey(keyData, passphrase)
			if kerr != nil {
				return nil, fmt.Errorf("orchestrator: load existing key for %s (%s): %w", spec.Name, kt, kerr)
			}
			item.PrivateKey = key
		case os.IsNotExist(err):
			// No prior key; Decide will issue fresh.
		default:
			return nil, fmt.Errorf("orchestrator: stat key for %s (%s): %w", spec.Name, kt, err)
		}

		bundleData, err := os.ReadFile(bundlePath(o.CertDir, spec.Name, string(kt)))
		switch {
		case err == nil:
			leaf, chain, cerr := cryptoadapter.ParseCertificateChainPEM(bundleData)
			if cerr != nil {
				return nil, fmt.Errorf("orchestrator: parse existing bundle for %s (%s): %w", spec.Name, kt, cerr)
			}
			item.Certificate = leaf
			item.Chain = chain
			item.IssuedAt = leaf.NotBefore
		case os.IsNotExist(err):
			// No prior certificate; Decide will issue fresh.
		default:
			return nil, fmt.Errorf("orchestrator: stat bundle for %s (%s): %w", spec.Name, kt, err)
		}

		ocspData, err := os.ReadFile(ocspPath(o.CertDir, spec.Name, string(kt)))
		if err == nil {
			item.OCSPResponse = ocspData
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("orchestrator: stat ocsp response for %s (%s): %w", spec.Name, kt, err)
		}

		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("orchestrator: existing material for %s (%s) is inconsistent: %w", spec.Name, kt, err)
		}
	}

	return cc, nil
}
