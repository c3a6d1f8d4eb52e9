package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// fetchOCSPResponse requests a fresh OCSP response for leaf from its
// issuer's OCSP responder, for the manager's own staple cache (spec.md
// §4.4's "fresh OCSP response when stapling is required").
func fetchOCSPResponse(ctx context.Context, leaf *cryptoadapter.Certificate, issuer *cryptoadapter.Certificate) ([]byte, error) {
	if leaf.OCSPServer == "" {
		return nil, fmt.Errorf("orchestrator: certificate %s carries no OCSP responder URL", leaf.CommonName)
	}

	req, err := cryptoadapter.BuildOCSPRequest(leaf, issuer)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build OCSP request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, leaf.OCSPServer, bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build OCSP HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fetch OCSP response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read OCSP response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orchestrator: OCSP responder returned status %d", resp.StatusCode)
	}

	if _, err := cryptoadapter.ParseOCSPResponse(body, issuer); err != nil {
		return nil, fmt.Errorf("orchestrator: validate fetched OCSP response: %w", err)
	}
	return body, nil
}
