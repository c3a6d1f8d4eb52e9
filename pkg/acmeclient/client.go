package acmeclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
	"github.com/cuemby/certmgr/pkg/hooks"
	"github.com/cuemby/certmgr/pkg/log"
	"github.com/cuemby/certmgr/pkg/txfile"
)

// userAgent identifies this manager and the ACME library backing it,
// preserving spec.md §4.3 step 6's shape while naming the Go stack in use.
const userAgent = "certmgr/1.0.0 acme-go/x-crypto"

// accountKeyParams is the fixed key shape for new account keys, spec.md
// §4.3 step 5.
var accountKeyParams = cryptoadapter.KeyParams{KeyType: cryptoadapter.KeyTypeRSA, RSABits: 4096}

// Config configures a Client bootstrap.
type Config struct {
	DirectoryURL     string
	ResourceDir      string
	Email            string
	PassphrasePolicy cryptoadapter.PassphraseProvider
	Passphrase       string // label passed to PassphrasePolicy.Derive
	AcceptTOS        func(tosURL string) bool
	HookRunner       *hooks.Runner
	PollDelay        time.Duration // delay between authorization polls; a server Retry-After header is not consulted
	PollRetryLimit   int           // per-authorization attempt budget
}

// Client drives ACME orders against a directory on behalf of one resource
// directory's persisted account.
type Client struct {
	acme         *acme.Client
	resourceDir  string
	hooks        *hooks.Runner
	pollDelay    time.Duration
	pollRetries  int
	registration Registration
}

// Bootstrap implements spec.md §4.3's registration bootstrap: load or
// create the account key and registration, reconciling both against the
// configured directory URL and passphrase policy. Account key changes are
// committed in one transaction before registering; a new registration is
// then persisted in a second transaction.
func Bootstrap(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 5 * time.Second
	}
	if cfg.PollRetryLimit <= 0 {
		cfg.PollRetryLimit = 10
	}

	tx := txfile.New()

	reg, err := loadRegistration(cfg.ResourceDir)
	if err != nil {
		return nil, err
	}
	if reg != nil && !reg.SameOrigin(cfg.DirectoryURL) {
		log.Logger.Warn().Str("registration_uri", reg.URI).Str("directory", cfg.DirectoryURL).
			Msg("acmeclient: registration origin differs from configured directory, discarding")
		reg = nil
	}

	key, keyDirty, err := loadOrMigrateAccountKey(cfg, tx)
	if err != nil {
		return nil, err
	}

	if tx.Len() > 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("acmeclient: commit account key changes: %w", err)
		}
	}
	_ = keyDirty

	acmeClient := &acme.Client{
		Key:          key.Signer,
		DirectoryURL: cfg.DirectoryURL,
		UserAgent:    userAgent,
	}

	c := &Client{
		acme:        acmeClient,
		resourceDir: cfg.ResourceDir,
		hooks:       cfg.HookRunner,
		pollDelay:   cfg.PollDelay,
		pollRetries: cfg.PollRetryLimit,
	}

	if reg != nil {
		c.acme.KID = acme.KeyID(reg.KID)
		c.registration = *reg
		return c, nil
	}

	if err := c.register(ctx, cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// loadOrMigrateAccountKey implements spec.md §4.3 steps 3-5: load the
// current-format key, migrating the legacy JWK if that's all that exists,
// generating a fresh key if neither exists, and reconciling its on-disk
// encryption to the configured passphrase policy.
func loadOrMigrateAccountKey(cfg Config, tx *txfile.Transaction) (*cryptoadapter.PrivateKey, bool, error) {
	keyPath := filepath.Join(cfg.ResourceDir, accountKeyFile)
	legacyPath := filepath.Join(cfg.ResourceDir, legacyJWKFile)

	passphrase := ""
	if cfg.PassphrasePolicy != nil {
		p, err := cfg.PassphrasePolicy.Derive(cfg.Passphrase, true)
		if err != nil {
			return nil, false, fmt.Errorf("acmeclient: derive passphrase: %w", err)
		}
		passphrase = p
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := cryptoadapter.LoadPrivateKey(data, passphrase)
		if err != nil {
			return nil, false, fmt.Errorf("acmeclient: load account key: %w", err)
		}
		if key.Encrypted == (passphrase != "") {
			return key, false, nil
		}
		// Reconcile encryption to match policy.
		encoded, err := key.Encode(passphrase)
		if err != nil {
			return nil, false, fmt.Errorf("acmeclient: re-encode account key: %w", err)
		}
		tx.Add(&txfile.Operation{Kind: txfile.Write, Path: keyPath, Mode: 0o600, Content: encoded})
		key.Encrypted = passphrase != ""
		return key, true, nil
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("acmeclient: stat account key: %w", err)
	}

	if data, err := os.ReadFile(legacyPath); err == nil {
		rsaKey, err := parseLegacyJWK(data)
		if err != nil {
			return nil, false, fmt.Errorf("acmeclient: migrate legacy account key: %w", err)
		}
		key := &cryptoadapter.PrivateKey{
			Params: cryptoadapter.KeyParams{KeyType: cryptoadapter.KeyTypeRSA, RSABits: rsaKey.N.BitLen()},
			Signer: rsaKey,
		}
		encoded, err := key.Encode(passphrase)
		if err != nil {
			return nil, false, fmt.Errorf("acmeclient: encode migrated account key: %w", err)
		}
		key.Encrypted = passphrase != ""
		tx.Add(&txfile.Operation{Kind: txfile.Write, Path: keyPath, Mode: 0o600, Content: encoded})
		tx.Add(&txfile.Operation{
			Kind: txfile.Archive, Path: legacyPath,
			FileType: "legacy-account-key", ArchiveDir: filepath.Join(cfg.ResourceDir, "archive"),
		})
		return key, true, nil
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("acmeclient: stat legacy account key: %w", err)
	}

	key, err := cryptoadapter.GeneratePrivateKey(accountKeyParams)
	if err != nil {
		return nil, false, fmt.Errorf("acmeclient: generate account key: %w", err)
	}
	encoded, err := key.Encode(passphrase)
	if err != nil {
		return nil, false, fmt.Errorf("acmeclient: encode account key: %w", err)
	}
	key.Encrypted = passphrase != ""
	tx.Add(&txfile.Operation{Kind: txfile.Write, Path: keyPath, Mode: 0o600, Content: encoded})
	return key, true, nil
}

// register implements spec.md §4.3 step 7: build and submit a new
// registration, then persist it.
func (c *Client) register(ctx context.Context, cfg Config) error {
	prompt := cfg.AcceptTOS
	if prompt == nil {
		prompt = func(tosURL string) bool {
			log.Logger.Info().Str("terms_of_service", tosURL).Msg("acmeclient: auto-accepting terms of service")
			return true
		}
	}

	acct := &acme.Account{}
	if cfg.Email != "" {
		acct.Contact = []string{"mailto:" + cfg.Email}
	}

	result, err := c.acme.Register(ctx, acct, prompt)
	if err != nil {
		return fmt.Errorf("acmeclient: register account: %w", err)
	}
	c.acme.KID = acme.KeyID(result.URI)

	c.registration = Registration{URI: result.URI, Email: cfg.Email, KID: result.URI}
	data, err := encodeRegistration(c.registration)
	if err != nil {
		return err
	}

	tx := txfile.New()
	tx.Add(&txfile.Operation{
		Kind: txfile.Write, Path: filepath.Join(cfg.ResourceDir, registrationFile),
		Mode: 0o600, Content: data,
	})
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("acmeclient: persist registration: %w", err)
	}

	log.Logger.Info().Str("uri", result.URI).Msg("acmeclient: registered new ACME account")
	return nil
}
