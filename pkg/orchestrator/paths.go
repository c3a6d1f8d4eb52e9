package orchestrator

import (
	"fmt"
	"path/filepath"
)

// keyPath returns <cert_dir>/<name>.<key_type>.key per spec.md §6.
func keyPath(certDir, name string, keyType string) string {
	return filepath.Join(certDir, fmt.Sprintf("%s.%s.key", name, keyType))
}

// bundlePath returns <cert_dir>/<name>.<key_type>.pem (leaf + chain).
func bundlePath(certDir, name string, keyType string) string {
	return filepath.Join(certDir, fmt.Sprintf("%s.%s.pem", name, keyType))
}

// ocspPath returns the cached OCSP response path for a certificate item.
func ocspPath(certDir, name string, keyType string) string {
	return filepath.Join(certDir, fmt.Sprintf("%s.%s.ocsp", name, keyType))
}
