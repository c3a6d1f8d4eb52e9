package verifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
	"github.com/cuemby/certmgr/pkg/log"
)

// dialTimeout bounds both the TCP connect and the TLS handshake that
// follows a STARTTLS upgrade.
const dialTimeout = 30 * time.Second

// VerifyContext checks every VerifyTarget in spec against the issued
// items, returning one ValidationError per mismatch found. A nil slice
// means every target verified cleanly.
func VerifyContext(ctx context.Context, spec certctx.CertificateSpec, items map[cryptoadapter.KeyType]*certctx.CertificateItem, policy OCSPPolicy) []*certctx.Error {
	var errs []*certctx.Error
	for _, target := range spec.VerifyTargets {
		errs = append(errs, VerifyTarget(ctx, target, items, policy)...)
	}
	return errs
}

// VerifyTarget dials every (host, address, key type) combination named by
// target and reports a ValidationError for each one that doesn't match
// the corresponding local CertificateItem.
func VerifyTarget(ctx context.Context, target certctx.VerifyTarget, items map[cryptoadapter.KeyType]*certctx.CertificateItem, policy OCSPPolicy) []*certctx.Error {
	var errs []*certctx.Error

	for _, host := range target.Hosts {
		probeHost := ProbeHost(host)
		addrs, err := ResolveAddresses(ctx, probeHost)
		if err != nil {
			errs = append(errs, certctx.ValidationError(err, "resolve verify target %s", probeHost))
			continue
		}

		for _, kt := range target.KeyTypes {
			item := items[kt]
			if item == nil || item.Certificate == nil {
				errs = append(errs, certctx.ValidationError(nil, "no local certificate for key type %s to verify %s", kt, host))
				continue
			}

			for _, addr := range addrs {
				if err := verifyOne(ctx, host, addr, target.Port, target.StartTLS, kt, item, policy); err != nil {
					errs = append(errs, certctx.ValidationError(err, "verify %s (%s:%d) key type %s", host, addr, target.Port, kt))
					continue
				}
				log.Logger.Info().Str("host", host).Str("address", addr.String()).Str("key_type", string(kt)).Msg("verifier: OK")
			}
		}
	}

	return errs
}

func verifyOne(ctx context.Context, sni string, addr net.IP, port int, starttls string, kt cryptoadapter.KeyType, item *certctx.CertificateItem, policy OCSPPolicy) error {
	state, err := dialAndHandshake(ctx, sni, addr, port, starttls, kt)
	if err != nil {
		return err
	}

	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("server presented no certificate")
	}
	peerLeaf := state.PeerCertificates[0]
	if !bytes.Equal(peerLeaf.Raw, item.Certificate.Raw) {
		return fmt.Errorf("peer leaf certificate does not match local bundle")
	}

	peerChain := state.PeerCertificates[1:]
	if len(peerChain) != len(item.Chain) {
		return fmt.Errorf("peer chain length %d does not match local chain length %d", len(peerChain), len(item.Chain))
	}
	for i, c := range peerChain {
		if !bytes.Equal(c.Raw, item.Chain[i].Raw) {
			return fmt.Errorf("peer chain element %d does not match local bundle", i)
		}
	}

	return verifyStaple(ctx, state.OCSPResponse, item, addr, port, sni, starttls, kt, policy)
}

// verifyStaple implements spec.md §4.5 steps 6-7: classify a present
// staple regardless of must-staple, and retry the dial for a missing one
// only when must-staple requires it.
func verifyStaple(ctx context.Context, raw []byte, item *certctx.CertificateItem, addr net.IP, port int, sni, starttls string, kt cryptoadapter.KeyType, policy OCSPPolicy) error {
	issuer := issuerCertificate(item)

	for attempt := 0; ; attempt++ {
		if len(raw) > 0 {
			status, err := classifyStaple(raw, issuer)
			if err != nil {
				return err
			}
			if status != cryptoadapter.OCSPGood {
				return fmt.Errorf("OCSP staple status is %s, want good", status)
			}
			log.Logger.Info().Str("ocsp_status", string(status)).Msg("verifier: OCSP staple OK")
			return nil
		}

		if !item.Certificate.HasMustStaple {
			return nil
		}

		attempts := policy.MaxAttempts
		if attempts <= 0 {
			attempts = DefaultOCSPPolicy.MaxAttempts
		}
		if attempt+1 >= attempts {
			return fmt.Errorf("must-staple certificate presented no OCSP staple after %d attempts", attempts)
		}

		delay := policy.RetryDelay
		if delay <= 0 {
			delay = DefaultOCSPPolicy.RetryDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		state, err := dialAndHandshake(ctx, sni, addr, port, starttls, kt)
		if err != nil {
			return err
		}
		raw = state.OCSPResponse
	}
}

func issuerCertificate(item *certctx.CertificateItem) *cryptoadapter.Certificate {
	if len(item.Chain) > 0 {
		return item.Chain[0]
	}
	return item.Certificate
}

// dialAndHandshake opens a TCP connection to addr, performs the
// protocol-specific STARTTLS upgrade when requested, then negotiates TLS
// with SNI set to the original hostname and a cipher list steering the
// server toward kt's certificate bundle.
func dialAndHandshake(ctx context.Context, sni string, addr net.IP, port int, starttls string, kt cryptoadapter.KeyType) (*tls.ConnectionState, error) {
	address := net.JoinHostPort(addr.String(), strconv.Itoa(port))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()

	if err := Upgrade(conn, starttls, sni); err != nil {
		return nil, fmt.Errorf("starttls upgrade: %w", err)
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         sni,
		CipherSuites:       CipherSuitesForKeyType(kt),
		InsecureSkipVerify: true, // chain comparison is against the local bundle, not a trust root
	})
	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tls handshake with %s: %w", address, err)
	}
	defer conn.SetDeadline(time.Time{})

	state := tlsConn.ConnectionState()
	return &state, nil
}
