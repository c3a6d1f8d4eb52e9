package acmeclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
	"github.com/cuemby/certmgr/pkg/log"
	"github.com/cuemby/certmgr/pkg/txfile"
)

// OrderSpec names what to order a certificate for.
type OrderSpec struct {
	CommonName       string
	AltNames         []string
	HTTPChallengeDir map[string]string // domain -> challenge directory
	MustStaple       bool
	KeyParams        cryptoadapter.KeyParams
}

// OrderResult is the outcome of a successful Obtain.
type OrderResult struct {
	Chain  [][]byte // DER certificates, leaf first
	URI    string   // order URI, for logs/diagnostics
	CertKey *cryptoadapter.PrivateKey
}

// pendingAuth is one entry of the poll loop's waiting queue: spec.md §4.3's
// tuple (retry_after, domain, auth_resource).
type pendingAuth struct {
	retryAfter time.Time
	domain     string
	authzURL   string
	attempts   int
}

// Obtain drives spec.md §4.3's order/authorization/finalize flow to
// completion for spec, returning the issued chain. Challenge files are
// always cleaned up and clear_http_challenge hooks always fired, whether
// Obtain succeeds or fails.
func (c *Client) Obtain(ctx context.Context, spec OrderSpec) (*OrderResult, error) {
	names := append([]string{spec.CommonName}, spec.AltNames...)
	names = dedupeNames(names)

	ids := make([]acme.AuthzID, len(names))
	for i, n := range names {
		ids[i] = acme.AuthzID{Type: "dns", Value: n}
	}

	order, err := c.acme.AuthorizeOrder(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: create order: %w", err)
	}

	written, cleanupErr := c.presentChallenges(ctx, order, spec)
	defer c.cleanupChallenges(written)

	if cleanupErr != nil {
		return nil, cleanupErr
	}

	if err := c.pollAuthorizations(ctx, order, spec); err != nil {
		return nil, err
	}

	return c.finalize(ctx, order, spec)
}

// challengeFile is one written HTTP-01 validation file, tracked so it can
// be removed regardless of how Obtain exits.
type challengeFile struct {
	domain string
	path   string
}

// presentChallenges materialises spec.md §4.3's HTTP-01 files for every
// pending authorization and fires set_http_challenge hooks.
func (c *Client) presentChallenges(ctx context.Context, order *acme.Order, spec OrderSpec) ([]challengeFile, error) {
	var written []challengeFile

	for _, authzURL := range order.AuthzURLs {
		authz, err := c.acme.GetAuthorization(ctx, authzURL)
		if err != nil {
			return written, fmt.Errorf("acmeclient: get authorization: %w", err)
		}

		if authz.Status == acme.StatusValid {
			continue
		}
		if authz.Status != acme.StatusPending {
			return written, fmt.Errorf("acmeclient: authorization for %s has unexpected status %s", authz.Identifier.Value, authz.Status)
		}

		domain := authz.Identifier.Value
		dir, ok := spec.HTTPChallengeDir[domain]
		if !ok {
			return written, fmt.Errorf("acmeclient: no http_challenge_directory configured for %s", domain)
		}

		var chal *acme.Challenge
		for _, ch := range authz.Challenges {
			if ch.Type == "http-01" {
				chal = ch
				break
			}
		}
		if chal == nil {
			return written, fmt.Errorf("acmeclient: no http-01 challenge offered for %s", domain)
		}

		content, err := c.acme.HTTP01ChallengeResponse(chal.Token)
		if err != nil {
			return written, fmt.Errorf("acmeclient: build http-01 response for %s: %w", domain, err)
		}

		path := filepath.Join(dir, chal.Token)
		tx := txfile.New()
		tx.Add(&txfile.Operation{Kind: txfile.Write, Path: path, Mode: 0o644, Content: []byte(content)})
		if err := tx.Commit(ctx); err != nil {
			return written, fmt.Errorf("acmeclient: write challenge file for %s: %w", domain, err)
		}
		written = append(written, challengeFile{domain: domain, path: path})

		if c.hooks != nil {
			c.hooks.Add("set_http_challenge", map[string]string{"domain": domain, "file": path})
		}
	}

	if c.hooks != nil {
		c.hooks.Call()
	}
	return written, nil
}

// cleanupChallenges removes every written challenge file and fires
// clear_http_challenge hooks, independent of whether the order succeeded.
func (c *Client) cleanupChallenges(written []challengeFile) {
	for _, f := range written {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			log.Logger.Warn().Err(err).Str("path", f.path).Msg("acmeclient: failed to remove challenge file")
		}
		if c.hooks != nil {
			c.hooks.Add("clear_http_challenge", map[string]string{"domain": f.domain, "file": f.path})
		}
	}
	if c.hooks != nil {
		c.hooks.Call()
	}
}

// pollAuthorizations answers each pending authorization's challenge, then
// drains spec.md §4.3's waiting queue of (retry_after, domain, auth)
// tuples until every authorization is valid, one fails, or one exceeds its
// per-authorization attempt budget.
func (c *Client) pollAuthorizations(ctx context.Context, order *acme.Order, spec OrderSpec) error {
	var queue []*pendingAuth

	for _, authzURL := range order.AuthzURLs {
		authz, err := c.acme.GetAuthorization(ctx, authzURL)
		if err != nil {
			return fmt.Errorf("acmeclient: get authorization: %w", err)
		}
		if authz.Status == acme.StatusValid {
			continue
		}

		var chal *acme.Challenge
		for _, ch := range authz.Challenges {
			if ch.Type == "http-01" {
				chal = ch
				break
			}
		}
		if chal == nil {
			return fmt.Errorf("acmeclient: no http-01 challenge to answer for %s", authz.Identifier.Value)
		}

		if _, err := c.acme.Accept(ctx, chal); err != nil {
			return fmt.Errorf("acmeclient: submit challenge response for %s: %w", authz.Identifier.Value, err)
		}

		queue = append(queue, &pendingAuth{domain: authz.Identifier.Value, authzURL: authzURL, retryAfter: time.Now()})
	}

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		if wait := time.Until(head.retryAfter); wait > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("acmeclient: polling cancelled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		authz, err := c.acme.GetAuthorization(ctx, head.authzURL)
		if err != nil {
			head.attempts++
			if head.attempts > c.pollRetries {
				return fmt.Errorf("acmeclient: polling %s timed out after %d attempts: %w", head.domain, head.attempts, err)
			}
			head.retryAfter = time.Now().Add(c.pollDelay)
			queue = append(queue, head)
			continue
		}

		switch authz.Status {
		case acme.StatusValid:
			continue
		case acme.StatusInvalid:
			return fmt.Errorf("acmeclient: authorization for %s is invalid: %s", head.domain, challengeErrorDetail(authz))
		default: // pending
			head.attempts++
			if head.attempts > c.pollRetries {
				return fmt.Errorf("acmeclient: authorization for %s did not validate within %d attempts", head.domain, head.attempts)
			}
			head.retryAfter = time.Now().Add(c.pollDelay)
			queue = append(queue, head)
		}
	}

	return nil
}

func challengeErrorDetail(authz *acme.Authorization) string {
	for _, ch := range authz.Challenges {
		if ch.Error == nil {
			continue
		}
		if acmeErr, ok := ch.Error.(*acme.Error); ok {
			return acmeErr.Detail
		}
		return ch.Error.Error()
	}
	return "no error detail provided"
}

// finalize builds a CSR for the order's identifiers signed with a fresh
// certificate key, submits it, and waits for the issued chain.
func (c *Client) finalize(ctx context.Context, order *acme.Order, spec OrderSpec) (*OrderResult, error) {
	certKey, err := cryptoadapter.GeneratePrivateKey(spec.KeyParams)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: generate certificate key: %w", err)
	}

	names := append([]string{spec.CommonName}, spec.AltNames...)
	names = dedupeNames(names)

	csr, err := cryptoadapter.BuildCSR(certKey, spec.CommonName, names, spec.MustStaple)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: build csr: %w", err)
	}

	der, _, err := c.acme.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: finalize order: %w", err)
	}

	return &OrderResult{Chain: der, URI: order.URI, CertKey: certKey}, nil
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
