package txfile

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/certmgr/pkg/log"
)

// Kind distinguishes the three operation shapes named in the commit
// engine's design: Write and ArchiveAndWrite both place new content,
// ArchiveAndWrite and Archive both preserve the supplanted file.
type Kind int

const (
	// Write places content at Path, discarding whatever was there before.
	Write Kind = iota
	// ArchiveAndWrite places content at Path, moving the supplanted file
	// into ArchiveDir/FileType/<basename>.<uuid> instead of a sibling temp
	// path. The archived copy always carries the random uuid suffix; it is
	// never stored under the bare base name.
	ArchiveAndWrite
	// Archive moves the file at Path into the archive with no replacement.
	Archive
)

// Owner names the uid/gid a written file should carry. A nil Owner leaves
// ownership unchanged.
type Owner struct {
	UID int
	GID int
}

// Operation is one pending write or archive action. It is created, then
// driven through apply, then either revert (on group failure) or cleanup
// (on group success) by a Transaction.
type Operation struct {
	Kind       Kind
	Path       string
	Mode       os.FileMode
	Owner      *Owner
	Content    []byte // nil for Archive
	FileType   string // archive subdirectory name for ArchiveAndWrite/Archive
	ArchiveDir string // base archive directory; empty disables archival

	// state recorded during apply, consumed by revert/cleanup.
	backupPath  string
	wroteNew    bool
	archived    bool
	createdDirs []string
}

func (op *Operation) archives() bool {
	return (op.Kind == ArchiveAndWrite || op.Kind == Archive) && op.ArchiveDir != ""
}

// apply stages one operation: ensures the parent directory exists, backs
// up any existing file (to the archive, when configured, or a sibling temp
// path otherwise), and writes new content when present.
func (op *Operation) apply() error {
	if dir := filepath.Dir(op.Path); dir != "." {
		created, err := ensureDir(dir)
		if err != nil {
			return fmt.Errorf("txfile: create parent directory %s: %w", dir, err)
		}
		op.createdDirs = append(op.createdDirs, created...)
	}

	if _, err := os.Lstat(op.Path); err == nil {
		backupPath, err := op.backupExisting()
		if err != nil {
			return err
		}
		op.backupPath = backupPath
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("txfile: stat %s: %w", op.Path, err)
	}

	if op.Content == nil {
		return nil
	}

	if err := os.WriteFile(op.Path, op.Content, op.Mode); err != nil {
		// The original file, if any, is still intact at op.backupPath.
		return fmt.Errorf("txfile: write %s: %w", op.Path, err)
	}
	op.wroteNew = true

	if err := os.Chmod(op.Path, op.Mode); err != nil {
		log.Logger.Warn().Err(err).Str("path", op.Path).Msg("txfile: failed to set file mode")
	}
	if op.Owner != nil {
		if err := os.Chown(op.Path, op.Owner.UID, op.Owner.GID); err != nil {
			log.Logger.Warn().Err(err).Str("path", op.Path).Msg("txfile: failed to set file owner")
		}
	}

	return nil
}

func (op *Operation) backupExisting() (string, error) {
	if op.archives() {
		archiveDir := filepath.Join(op.ArchiveDir, op.FileType)
		if _, err := ensureDir(archiveDir); err != nil {
			return "", fmt.Errorf("txfile: create archive directory %s: %w", archiveDir, err)
		}
		dest := filepath.Join(archiveDir, filepath.Base(op.Path)+"."+uuid.NewString())
		if err := os.Rename(op.Path, dest); err != nil {
			return "", fmt.Errorf("txfile: archive %s: %w", op.Path, err)
		}
		op.archived = true
		return dest, nil
	}

	dest := filepath.Join(filepath.Dir(op.Path), fmt.Sprintf(".%s.tmp-%d", filepath.Base(op.Path), rand.Int63()))
	if err := os.Rename(op.Path, dest); err != nil {
		return "", fmt.Errorf("txfile: back up %s: %w", op.Path, err)
	}
	return dest, nil
}

// revert undoes a staged operation: the newly-written file (if any) is
// removed and the backup, if one was taken, is restored to its original
// path. A failed restore is logged but does not stop the caller from
// reverting the rest of the group.
func (op *Operation) revert() {
	if op.wroteNew {
		if err := os.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			log.Logger.Warn().Err(err).Str("path", op.Path).Msg("txfile: failed to remove staged file during revert")
		}
	}

	if op.backupPath != "" {
		if err := os.Rename(op.backupPath, op.Path); err != nil {
			log.Logger.Error().Err(err).Str("path", op.Path).Str("backup", op.backupPath).
				Msg("txfile: failed to restore backup during revert")
		}
	}
}

// cleanup finalizes a successfully-committed operation: non-archived
// backups are discarded, archived ones are left in place, and any
// directories apply created are removed if still empty.
func (op *Operation) cleanup() {
	if op.backupPath != "" && !op.archived {
		if err := os.Remove(op.backupPath); err != nil && !os.IsNotExist(err) {
			log.Logger.Warn().Err(err).Str("backup", op.backupPath).Msg("txfile: failed to clean up backup file")
		}
	}

	for i := len(op.createdDirs) - 1; i >= 0; i-- {
		_ = os.Remove(op.createdDirs[i]) // ignore error: non-empty directory is expected and fine
	}
}

// ensureDir creates dir and any missing parents, returning the ones it
// actually created (shallowest first) so the caller can remove them again,
// deepest first, on cleanup if they end up empty.
func ensureDir(dir string) (created []string, err error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, nil
	}

	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if d == filepath.Dir(d) {
			break
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	for i := len(missing) - 1; i >= 0; i-- {
		created = append(created, missing[i])
	}
	return created, nil
}
