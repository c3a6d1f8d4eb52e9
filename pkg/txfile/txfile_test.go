package txfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCommitWritesAllFiles(t *testing.T) {
	dir := t.TempDir()

	tx := New()
	tx.Add(&Operation{Kind: Write, Path: filepath.Join(dir, "key.pem"), Mode: 0o600, Content: []byte("key")})
	tx.Add(&Operation{Kind: Write, Path: filepath.Join(dir, "sub", "cert.pem"), Mode: 0o644, Content: []byte("cert")})

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "key.pem"))
	if err != nil || string(data) != "key" {
		t.Fatalf("key.pem = %q, %v", data, err)
	}

	info, err := os.Stat(filepath.Join(dir, "key.pem"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	data, err = os.ReadFile(filepath.Join(dir, "sub", "cert.pem"))
	if err != nil || string(data) != "cert" {
		t.Fatalf("sub/cert.pem = %q, %v", data, err)
	}
}

func TestCommitRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()

	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(keyPath, []byte("original"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	// An operation targeting a path inside a file (not a directory) can
	// never succeed, forcing rollback of the first operation.
	badParent := filepath.Join(dir, "key.pem", "impossible", "cert.pem")

	tx := New()
	tx.Add(&Operation{Kind: Write, Path: keyPath, Mode: 0o600, Content: []byte("rotated")})
	tx.Add(&Operation{Kind: Write, Path: badParent, Mode: 0o644, Content: []byte("cert")})

	err := tx.Commit(context.Background())
	if err == nil {
		t.Fatalf("Commit: expected failure, got nil")
	}

	data, readErr := os.ReadFile(keyPath)
	if readErr != nil {
		t.Fatalf("ReadFile after rollback: %v", readErr)
	}
	if string(data) != "original" {
		t.Errorf("after rollback, key.pem = %q, want %q", data, "original")
	}
}

func TestArchiveAndWritePreservesPriorFile(t *testing.T) {
	dir := t.TempDir()
	archiveDir := filepath.Join(dir, "archive")

	certPath := filepath.Join(dir, "example.com.rsa.pem")
	if err := os.WriteFile(certPath, []byte("old-cert"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tx := New()
	tx.Add(&Operation{
		Kind:       ArchiveAndWrite,
		Path:       certPath,
		Mode:       0o644,
		Content:    []byte("new-cert"),
		FileType:   "certificate",
		ArchiveDir: archiveDir,
	})

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, err := os.ReadFile(certPath)
	if err != nil || string(data) != "new-cert" {
		t.Fatalf("new content = %q, %v", data, err)
	}

	entries, err := os.ReadDir(filepath.Join(archiveDir, "certificate"))
	if err != nil {
		t.Fatalf("ReadDir archive: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive dir has %d entries, want 1", len(entries))
	}

	archived, err := os.ReadFile(filepath.Join(archiveDir, "certificate", entries[0].Name()))
	if err != nil || string(archived) != "old-cert" {
		t.Fatalf("archived content = %q, %v", archived, err)
	}
}

func TestCleanupRemovesBackupForPlainWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tx := New()
	tx.Add(&Operation{Kind: Write, Path: path, Mode: 0o644, Content: []byte("new")})

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries after cleanup, want 1 (no leftover backup)", len(entries))
	}
}
