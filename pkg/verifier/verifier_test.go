package verifier

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

func TestProbeHostRewritesWildcard(t *testing.T) {
	cases := map[string]string{
		"*.example.com":     "wildcard-test.example.com",
		"www.example.com":   "www.example.com",
		"*.sub.example.com": "wildcard-test.sub.example.com",
	}
	for in, want := range cases {
		if got := ProbeHost(in); got != want {
			t.Errorf("ProbeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCipherSuitesForKeyTypeNonEmptyAndDistinctPerKeyType(t *testing.T) {
	rsaSuites := CipherSuitesForKeyType(cryptoadapter.KeyTypeRSA)
	ecdsaSuites := CipherSuitesForKeyType(cryptoadapter.KeyTypeECDSA)

	if len(rsaSuites) == 0 {
		t.Fatal("expected at least one RSA-tagged cipher suite")
	}
	if len(ecdsaSuites) == 0 {
		t.Fatal("expected at least one ECDSA-tagged cipher suite")
	}
	if equalUint16Slices(rsaSuites, ecdsaSuites) {
		t.Errorf("RSA and ECDSA cipher suite sets should differ")
	}
}

func equalUint16Slices(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUnsupportedSTARTTLSType(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	if err := Upgrade(client, "gopher", "example.com"); err == nil {
		t.Errorf("expected error for unsupported STARTTLS type")
	}
}

func TestUpgradeSMTPSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Upgrade(client, "smtp", "mail.example.com") }()

	r := bufio.NewReader(server)
	server.Write([]byte("220 mail.example.com ESMTP\r\n"))

	line, _ := r.ReadString('\n')
	if line != "ehlo acmebot.org\r\n" {
		t.Fatalf("expected EHLO command, got %q", line)
	}
	server.Write([]byte("250-mail.example.com\r\n250 STARTTLS\r\n"))

	line, _ = r.ReadString('\n')
	if line != "starttls\r\n" {
		t.Fatalf("expected starttls command, got %q", line)
	}
	server.Write([]byte("220 Ready to start TLS\r\n"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Upgrade: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Upgrade to complete")
	}
}

func TestUpgradeSMTPFailsWithoutSTARTTLSAdvertised(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Upgrade(client, "smtp", "mail.example.com") }()

	r := bufio.NewReader(server)
	server.Write([]byte("220 mail.example.com ESMTP\r\n"))
	r.ReadString('\n') // consume EHLO
	server.Write([]byte("250 mail.example.com\r\n"))

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error when STARTTLS is not advertised")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Upgrade to complete")
	}
}

func TestUpgradeSieveRequiresQuotedSTARTTLS(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Upgrade(client, "sieve", "sieve.example.com") }()

	server.Write([]byte("\"IMPLEMENTATION\" \"Example\"\r\nOK\r\n"))

	select {
	case err := <-done:
		if err == nil {
			t.Fatal(`expected error when "STARTTLS" is not advertised`)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Upgrade to complete")
	}
}

func TestUpgradeSieveSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Upgrade(client, "sieve", "sieve.example.com") }()

	r := bufio.NewReader(server)
	server.Write([]byte("\"STARTTLS\"\r\nOK\r\n"))

	line, _ := r.ReadString('\n')
	if line != "StartTls\r\n" {
		t.Fatalf("expected StartTls command, got %q", line)
	}
	server.Write([]byte("OK\r\n"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Upgrade: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Upgrade to complete")
	}
}

func TestUpgradePOP3Success(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Upgrade(client, "pop3", "pop.example.com") }()

	r := bufio.NewReader(server)
	server.Write([]byte("+OK POP3 ready\r\n"))

	line, _ := r.ReadString('\n')
	if line != "STLS\r\n" {
		t.Fatalf("expected STLS command, got %q", line)
	}
	server.Write([]byte("+OK\r\n"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Upgrade: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Upgrade to complete")
	}
}
