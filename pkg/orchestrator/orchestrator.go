package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/certmgr/pkg/acmeclient"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
	"github.com/cuemby/certmgr/pkg/hooks"
	"github.com/cuemby/certmgr/pkg/log"
	"github.com/cuemby/certmgr/pkg/verifier"
)

// Orchestrator drives one processing pass over a set of CertificateContexts
// against a single bootstrapped ACME client.
type Orchestrator struct {
	Acme         *acmeclient.Client
	Hooks        *hooks.Runner
	CertDir      string
	ArchiveDir   string
	Passphrase   cryptoadapter.PassphraseProvider
	VerifyPolicy verifier.OCSPPolicy

	logger zerolog.Logger
}

// New creates an Orchestrator. acme must already be bootstrapped
// (acmeclient.Bootstrap); certDir and archiveDir are the on-disk locations
// spec.md §6 names for issued material and superseded files.
func New(acme *acmeclient.Client, hookRunner *hooks.Runner, certDir, archiveDir string, passphrase cryptoadapter.PassphraseProvider) *Orchestrator {
	return &Orchestrator{
		Acme:         acme,
		Hooks:        hookRunner,
		CertDir:      certDir,
		ArchiveDir:   archiveDir,
		Passphrase:   passphrase,
		VerifyPolicy: verifier.DefaultOCSPPolicy,
		logger:       log.WithComponent("orchestrator"),
	}
}
