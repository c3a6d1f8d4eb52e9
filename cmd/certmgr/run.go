package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/certmgr/pkg/acmeclient"
	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/hooks"
	"github.com/cuemby/certmgr/pkg/log"
	"github.com/cuemby/certmgr/pkg/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one issuance/renewal/verification pass over the configured certificates",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("serve-metrics", false, "Serve Prometheus metrics on the configured listen address until the pass completes")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	serveMetrics, _ := cmd.Flags().GetBool("serve-metrics")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Warn().Msg("certmgr: received shutdown signal, cancelling run")
		cancel()
	}()

	if serveMetrics {
		go serveMetricsHTTP(cfg.MetricsListen)
	}

	lock, err := acmeclient.AcquireLock(cfg.ACME.ResourceDir)
	if err != nil {
		return fmt.Errorf("certmgr: another instance holds the resource directory lock: %w", err)
	}
	defer lock.Release()

	hookRunner := hooks.NewRunner(cfg.Hooks)

	acmeCfg := acmeclient.Config{
		DirectoryURL:     cfg.ACME.DirectoryURL,
		ResourceDir:      cfg.ACME.ResourceDir,
		Email:            cfg.ACME.Email,
		PassphrasePolicy: cfg.passphraseProvider(),
		Passphrase:       "acme-account",
		HookRunner:       hookRunner,
		PollDelay:        cfg.ACME.PollDelay.asDuration(),
		PollRetryLimit:   cfg.ACME.PollRetryLimit,
	}
	if cfg.ACME.AcceptTOS {
		acmeCfg.AcceptTOS = func(string) bool { return true }
	}

	client, err := acmeclient.Bootstrap(ctx, acmeCfg)
	if err != nil {
		return fmt.Errorf("certmgr: bootstrap ACME client: %w", err)
	}

	orch := orchestrator.New(client, hookRunner, cfg.CertDir, cfg.ArchiveDir, cfg.passphraseProvider())

	specs, err := cfg.specs()
	if err != nil {
		return err
	}

	contexts := make([]*certctx.CertificateContext, 0, len(specs))
	for _, spec := range specs {
		cc, err := orch.LoadContext(spec)
		if err != nil {
			return fmt.Errorf("certmgr: load existing state for %q: %w", spec.Name, err)
		}
		contexts = append(contexts, cc)
	}

	results := orch.Run(ctx, contexts)
	return reportResults(results)
}

func serveMetricsHTTP(addr string) {
	mux := newMetricsMux()
	log.Logger.Info().Str("addr", addr).Msg("certmgr: serving metrics")
	if err := serveHTTP(addr, mux); err != nil {
		log.Logger.Error().Err(err).Msg("certmgr: metrics server exited")
	}
}

func reportResults(results []orchestrator.ContextResult) error {
	fatal := false
	for _, r := range results {
		for _, item := range r.Items {
			if item.Err != nil {
				log.Logger.Error().Str("certificate", r.Name).Str("key_type", string(item.KeyType)).
					Str("decision", string(item.Decision)).Err(item.Err).Msg("certmgr: issuance failed")
			}
		}
		for _, verr := range r.VerifyErrors {
			log.Logger.Warn().Str("certificate", r.Name).Err(verr).Msg("certmgr: verification finding")
		}
		if r.Fatal {
			fatal = true
		}
	}
	if fatal {
		return fmt.Errorf("certmgr: one or more certificates failed with a fatal error")
	}
	return nil
}
