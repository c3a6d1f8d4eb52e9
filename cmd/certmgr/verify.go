package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/certmgr/pkg/log"
	"github.com/cuemby/certmgr/pkg/orchestrator"
	"github.com/cuemby/certmgr/pkg/verifier"
)

var verifyOnlyCmd = &cobra.Command{
	Use:   "verify-only",
	Short: "Dial every configured verify target and compare against the certificates already on disk, without issuing anything",
	RunE:  runVerifyOnly,
}

func runVerifyOnly(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	specs, err := cfg.specs()
	if err != nil {
		return err
	}

	// No ACME client or hook runner is needed: verify-only never issues
	// anything, only dials deployed endpoints against what is already on
	// disk.
	orch := orchestrator.New(nil, nil, cfg.CertDir, cfg.ArchiveDir, cfg.passphraseProvider())
	ctx := context.Background()

	fatal := false
	for _, spec := range specs {
		cc, err := orch.LoadContext(spec)
		if err != nil {
			return fmt.Errorf("certmgr: load %q for verification: %w", spec.Name, err)
		}

		errs := verifier.VerifyContext(ctx, spec, cc.Items, verifier.DefaultOCSPPolicy)
		for _, verr := range errs {
			log.Logger.Warn().Str("certificate", spec.Name).Err(verr).Msg("certmgr: verification finding")
			if verr.Fatal() {
				fatal = true
			}
		}
	}

	if fatal {
		return fmt.Errorf("certmgr: one or more deployed certificates failed verification")
	}
	return nil
}
