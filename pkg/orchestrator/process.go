package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuemby/certmgr/pkg/acmeclient"
	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
	"github.com/cuemby/certmgr/pkg/metrics"
	"github.com/cuemby/certmgr/pkg/txfile"
	"github.com/cuemby/certmgr/pkg/verifier"
)

// ItemResult records what happened to one key-type item of a context during
// a processing pass.
type ItemResult struct {
	KeyType  cryptoadapter.KeyType
	Decision certctx.Decision
	Err      *certctx.Error
}

// ContextResult records the full outcome of processing one
// CertificateContext: the decision and error (if any) per key type, plus
// any verification findings gathered afterward.
type ContextResult struct {
	Name         string
	Items        []ItemResult
	VerifyErrors []*certctx.Error
	Fatal        bool
}

// Run processes every context sequentially (spec.md §5: single-threaded,
// no shared mutable state crosses context boundaries), isolating a failure
// in one context from the rest. It returns one ContextResult per input
// context, in order.
func (o *Orchestrator) Run(ctx context.Context, contexts []*certctx.CertificateContext) []ContextResult {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RunDuration)
		metrics.RunsTotal.Inc()
	}()

	metrics.CertificatesTotal.Reset()
	results := make([]ContextResult, 0, len(contexts))
	for _, cc := range contexts {
		results = append(results, o.processContext(ctx, cc))
	}
	return results
}

// processContext evaluates and, where needed, renews every key-type item of
// cc, then verifies the deployed result. A fatal error on one item aborts
// the context: later items are not attempted and verification is skipped,
// though hooks already queued by earlier items still fire.
func (o *Orchestrator) processContext(ctx context.Context, cc *certctx.CertificateContext) ContextResult {
	logger := o.logger.With().Str("certificate", cc.Spec.Name).Logger()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ContextProcessDuration, cc.Spec.Name)

	result := ContextResult{Name: cc.Spec.Name}

	for _, kt := range cc.Spec.KeyTypes {
		item := cc.Items[kt]
		if item == nil {
			item = &certctx.CertificateItem{KeyType: kt}
			cc.Items[kt] = item
		}

		decision := certctx.Decide(cc.Spec, item, nowFunc())
		metrics.CertificatesTotal.WithLabelValues(string(kt), string(decision)).Inc()

		ir := ItemResult{KeyType: kt, Decision: decision}

		if decision == certctx.DecisionNoop {
			logger.Debug().Str("key_type", string(kt)).Msg("orchestrator: no action needed")
			result.Items = append(result.Items, ir)
			continue
		}

		if err := o.processItem(ctx, cc.Spec, item, decision); err != nil {
			logger.Error().Err(err).Str("key_type", string(kt)).Str("decision", string(decision)).
				Msg("orchestrator: processing item failed")
			metrics.RenewalsTotal.WithLabelValues(cc.Spec.Name, string(kt), "fatal_error").Inc()
			ir.Err = err
			result.Items = append(result.Items, ir)
			if err.Fatal() {
				result.Fatal = true
				metrics.FatalErrorsTotal.WithLabelValues(cc.Spec.Name, string(err.Kind)).Inc()
				break
			}
			continue
		}

		metrics.RenewalsTotal.WithLabelValues(cc.Spec.Name, string(kt), "success").Inc()
		result.Items = append(result.Items, ir)
	}

	if o.Hooks != nil {
		o.Hooks.Call()
	}

	if result.Fatal {
		return result
	}

	verifyErrs := verifier.VerifyContext(ctx, cc.Spec, cc.Items, o.VerifyPolicy)
	for _, verr := range verifyErrs {
		logger.Warn().Err(verr).Msg("orchestrator: verification finding")
		metrics.ValidationErrorsTotal.WithLabelValues(cc.Spec.Name, "").Inc()
	}
	result.VerifyErrors = verifyErrs

	return result
}

// processItem implements spec.md §4.4's per-decision pipeline: generate a
// fresh key, obtain the certificate over ACME, stage the archive-and-write
// group, commit it, and queue post-issue hooks.
func (o *Orchestrator) processItem(ctx context.Context, spec certctx.CertificateSpec, item *certctx.CertificateItem, decision certctx.Decision) *certctx.Error {
	timer := metrics.NewTimer()

	orderSpec := buildOrderSpec(spec, item)

	result, err := o.Acme.Obtain(ctx, orderSpec)
	timer.ObserveDuration(metrics.AcmeOrderDuration)
	if err != nil {
		return certctx.AcmeProtocolError(err, "obtain certificate for %s (%s)", spec.Name, item.KeyType)
	}
	if len(result.Chain) == 0 {
		return certctx.AcmeProtocolError(nil, "ACME order for %s (%s) returned an empty chain", spec.Name, item.KeyType)
	}

	leaf, chain, err := parseChain(result.Chain)
	if err != nil {
		return certctx.CryptoError(err, "parse issued chain for %s (%s)", spec.Name, item.KeyType)
	}

	passphrase := ""
	if spec.PassphrasePolicy.Encrypt && o.Passphrase != nil {
		label := spec.PassphrasePolicy.Label
		if label == "" {
			label = spec.Name
		}
		p, derr := o.Passphrase.Derive(label, true)
		if derr != nil {
			return certctx.CryptoError(derr, "derive passphrase for %s (%s)", spec.Name, item.KeyType)
		}
		passphrase = p
	}

	keyPEM, err := result.CertKey.Encode(passphrase)
	if err != nil {
		return certctx.CryptoError(err, "encode private key for %s (%s)", spec.Name, item.KeyType)
	}
	result.CertKey.Encrypted = passphrase != ""

	bundlePEM := cryptoadapter.EncodeCertificateChainPEM(leaf, chain)

	tx := txfile.New()
	tx.Add(&txfile.Operation{
		Kind: txfile.ArchiveAndWrite, Path: keyPath(o.CertDir, spec.Name, string(item.KeyType)),
		Mode: 0o600, Content: keyPEM, FileType: "key", ArchiveDir: o.ArchiveDir,
	})
	tx.Add(&txfile.Operation{
		Kind: txfile.ArchiveAndWrite, Path: bundlePath(o.CertDir, spec.Name, string(item.KeyType)),
		Mode: 0o644, Content: bundlePEM, FileType: "cert", ArchiveDir: o.ArchiveDir,
	})

	var ocspResp []byte
	if spec.MustStaple {
		issuer := leaf
		if len(chain) > 0 {
			issuer = chain[0]
		}
		resp, ferr := fetchOCSPResponse(ctx, leaf, issuer)
		if ferr != nil {
			o.logger.Warn().Err(ferr).Str("certificate", spec.Name).Msg("orchestrator: fresh OCSP response unavailable, continuing without it")
		} else {
			ocspResp = resp
			tx.Add(&txfile.Operation{
				Kind: txfile.ArchiveAndWrite, Path: ocspPath(o.CertDir, spec.Name, string(item.KeyType)),
				Mode: 0o644, Content: resp, FileType: "ocsp", ArchiveDir: o.ArchiveDir,
			})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return certctx.FilesystemError(err, "commit issued material for %s (%s)", spec.Name, item.KeyType)
	}

	item.PrivateKey = result.CertKey
	item.Certificate = leaf
	item.Chain = chain
	item.OCSPResponse = ocspResp
	item.IssuedAt = nowFunc()

	if err := item.Validate(); err != nil {
		return certctx.CryptoError(err, "post-issue consistency check for %s (%s)", spec.Name, item.KeyType)
	}

	if o.Hooks != nil {
		o.Hooks.Add("certificate_issued", map[string]string{
			"name":      spec.Name,
			"key_type":  string(item.KeyType),
			"decision":  string(decision),
			"key_path":  keyPath(o.CertDir, spec.Name, string(item.KeyType)),
			"cert_path": bundlePath(o.CertDir, spec.Name, string(item.KeyType)),
		})
	}

	return nil
}

func parseChain(der [][]byte) (*cryptoadapter.Certificate, cryptoadapter.Chain, error) {
	leaf, err := cryptoadapter.ParseCertificate(der[0])
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: parse leaf: %w", err)
	}
	chain := make(cryptoadapter.Chain, 0, len(der)-1)
	for _, c := range der[1:] {
		parsed, err := cryptoadapter.ParseCertificate(c)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: parse chain element: %w", err)
		}
		chain = append(chain, parsed)
	}
	return leaf, chain, nil
}

// perDomainChallengeDir expands the spec's single configured challenge
// directory into the per-domain map Obtain expects, since one
// CertificateSpec's names are always served from one location.
func perDomainChallengeDir(spec certctx.CertificateSpec) map[string]string {
	m := make(map[string]string, 1+len(spec.AltNames))
	m[spec.CommonName] = spec.HTTPChallengeDir
	for _, n := range spec.AltNames {
		m[n] = spec.HTTPChallengeDir
	}
	return m
}

// buildOrderSpec derives the ACME order for one key-type item, pulling the
// key generation parameters from the spec for item.KeyType so that the
// issued key matches what was configured rather than always defaulting to
// one key shape.
func buildOrderSpec(spec certctx.CertificateSpec, item *certctx.CertificateItem) acmeclient.OrderSpec {
	return acmeclient.OrderSpec{
		CommonName:       spec.CommonName,
		AltNames:         spec.AltNames,
		HTTPChallengeDir: perDomainChallengeDir(spec),
		MustStaple:       spec.MustStaple,
		KeyParams:        spec.KeyParams(item.KeyType),
	}
}
