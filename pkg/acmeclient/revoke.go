package acmeclient

import (
	"context"
	"fmt"

	"golang.org/x/crypto/acme"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// Revoke asks the directory to revoke cert, mirroring the thin wrapper
// around the library revoke call that original_source/certlib/acme.py
// exposes for the same operation.
func (c *Client) Revoke(ctx context.Context, cert *cryptoadapter.Certificate) error {
	if err := c.acme.RevokeCert(ctx, nil, cert.Raw, acme.CRLReasonUnspecified); err != nil {
		return fmt.Errorf("acmeclient: revoke certificate %s: %w", cert.CommonName, err)
	}
	return nil
}
