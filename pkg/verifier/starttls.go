package verifier

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// starttlsTimeout bounds the plaintext upgrade exchange; cleared once the
// TLS handshake is ready to begin (spec.md §4.5's STARTTLS table).
const starttlsTimeout = 30 * time.Second

// Upgrade performs the protocol-specific plaintext exchange that readies
// conn for a TLS ClientHello. An empty protocol is a no-op. Any other
// unrecognised value fails with "Unsupported STARTTLS type".
func Upgrade(conn net.Conn, protocol, host string) error {
	if protocol == "" {
		return nil
	}

	if err := conn.SetDeadline(time.Now().Add(starttlsTimeout)); err != nil {
		return fmt.Errorf("verifier: set starttls deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	r := bufio.NewReader(conn)

	switch protocol {
	case "smtp":
		return upgradeSMTP(conn, r)
	case "pop3":
		return upgradePOP3(conn, r)
	case "imap":
		return upgradeIMAP(conn, r)
	case "ftp":
		return upgradeFTP(conn, r)
	case "xmpp":
		return upgradeXMPP(conn, r, host)
	case "sieve":
		return upgradeSieve(conn, r)
	default:
		return fmt.Errorf("verifier: Unsupported STARTTLS type %q", protocol)
	}
}

func sendLine(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func upgradeSMTP(conn net.Conn, r *bufio.Reader) error {
	if _, err := readLine(r); err != nil { // banner
		return fmt.Errorf("verifier: smtp banner: %w", err)
	}
	if err := sendLine(conn, "ehlo acmebot.org"); err != nil {
		return fmt.Errorf("verifier: smtp ehlo: %w", err)
	}

	var ehloResponse strings.Builder
	for {
		line, err := readLine(r)
		if err != nil {
			return fmt.Errorf("verifier: smtp ehlo response: %w", err)
		}
		ehloResponse.WriteString(line)
		ehloResponse.WriteString("\n")
		if len(line) >= 4 && line[3] == ' ' {
			break // final line of a multi-line reply has a space at column 4
		}
	}
	if !strings.Contains(strings.ToUpper(ehloResponse.String()), "STARTTLS") {
		return fmt.Errorf("verifier: smtp server did not advertise STARTTLS")
	}

	if err := sendLine(conn, "starttls"); err != nil {
		return fmt.Errorf("verifier: smtp starttls: %w", err)
	}
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: smtp starttls response: %w", err)
	}
	return nil
}

func upgradePOP3(conn net.Conn, r *bufio.Reader) error {
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: pop3 banner: %w", err)
	}
	if err := sendLine(conn, "STLS"); err != nil {
		return fmt.Errorf("verifier: pop3 stls: %w", err)
	}
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: pop3 stls response: %w", err)
	}
	return nil
}

func upgradeIMAP(conn net.Conn, r *bufio.Reader) error {
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: imap banner: %w", err)
	}
	if err := sendLine(conn, "a001 STARTTLS"); err != nil {
		return fmt.Errorf("verifier: imap starttls: %w", err)
	}
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: imap starttls response: %w", err)
	}
	return nil
}

func upgradeFTP(conn net.Conn, r *bufio.Reader) error {
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: ftp banner: %w", err)
	}
	if err := sendLine(conn, "AUTH TLS"); err != nil {
		return fmt.Errorf("verifier: ftp auth tls: %w", err)
	}
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: ftp auth tls response: %w", err)
	}
	return nil
}

func upgradeXMPP(conn net.Conn, r *bufio.Reader, host string) error {
	open := fmt.Sprintf(`<?xml version='1.0'?><stream:stream to='%s' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' version='1.0'>`, host)
	if _, err := conn.Write([]byte(open)); err != nil {
		return fmt.Errorf("verifier: xmpp stream open: %w", err)
	}
	buf := make([]byte, 4096)
	if _, err := conn.Read(buf); err != nil {
		return fmt.Errorf("verifier: xmpp stream response: %w", err)
	}

	if _, err := conn.Write([]byte(`<starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'/>`)); err != nil {
		return fmt.Errorf("verifier: xmpp starttls: %w", err)
	}
	if _, err := conn.Read(buf); err != nil {
		return fmt.Errorf("verifier: xmpp starttls response: %w", err)
	}
	return nil
}

func upgradeSieve(conn net.Conn, r *bufio.Reader) error {
	var banner strings.Builder
	for {
		line, err := readLine(r)
		if err != nil {
			return fmt.Errorf("verifier: sieve banner: %w", err)
		}
		banner.WriteString(line)
		banner.WriteString("\n")
		if line == "OK" || strings.HasPrefix(line, "OK ") {
			break
		}
	}
	if !strings.Contains(banner.String(), `"STARTTLS"`) {
		return fmt.Errorf(`verifier: sieve server did not advertise "STARTTLS"`)
	}

	if err := sendLine(conn, "StartTls"); err != nil {
		return fmt.Errorf("verifier: sieve starttls: %w", err)
	}
	if _, err := readLine(r); err != nil {
		return fmt.Errorf("verifier: sieve starttls response: %w", err)
	}
	return nil
}
