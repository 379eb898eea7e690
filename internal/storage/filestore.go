// Package storage implements the durable write discipline for the store
// file: writes go to a sibling temp file, are fsynced, then atomically
// renamed over the target, so a crash mid-write never leaves a partial file.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zjrosen/flowstate/internal/log"
)

const (
	// StoreFileName is the canonical store file inside the base directory.
	StoreFileName = "flowstate.json"

	backupDirName   = "backups"
	backupTimestamp = "20060102T150405.000000000"
)

// FileStore manages the store file and its backups inside a base directory.
type FileStore struct {
	baseDir         string
	backupRetention int
}

// New creates a FileStore rooted at baseDir, creating the directory
// structure if it doesn't exist. backupRetention is the number of backups
// kept; zero disables backups entirely.
func New(baseDir string, backupRetention int) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	if backupRetention > 0 {
		if err := os.MkdirAll(filepath.Join(baseDir, backupDirName), 0755); err != nil {
			return nil, fmt.Errorf("creating backup directory: %w", err)
		}
	}
	return &FileStore{baseDir: baseDir, backupRetention: backupRetention}, nil
}

// Path returns the full path of the store file.
func (fs *FileStore) Path() string {
	return filepath.Join(fs.baseDir, StoreFileName)
}

// BaseDir returns the store's base directory.
func (fs *FileStore) BaseDir() string {
	return fs.baseDir
}

// Read returns the current store bytes. A missing file is not an error:
// it returns (nil, false, nil) so callers can start from an empty store.
func (fs *FileStore) Read() (data []byte, exists bool, err error) {
	data, err = os.ReadFile(fs.Path())
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading store file: %w", err)
	}
	return data, true, nil
}

// Write durably replaces the store file with data. The sequence is:
// temp file in the same directory, write, fsync, close, optional backup of
// the previous file, rename, directory fsync. The rename is the only step a
// concurrent reader can observe, and it is atomic on the filesystems this
// store targets.
func (fs *FileStore) Write(data []byte) error {
	target := fs.Path()

	tmp, err := os.CreateTemp(fs.baseDir, ".tmp-"+StoreFileName+"-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if fs.backupRetention > 0 {
		if err := fs.backupCurrent(); err != nil {
			// A failed backup must not block the write; the data being
			// persisted is newer than anything the backup would preserve.
			log.ErrorErr(log.CatStore, "backup failed, continuing with write", err)
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	cleanupTmp = false

	if err := syncDir(fs.baseDir); err != nil {
		// The rename already landed; a directory sync failure only matters
		// for power loss in the next instant.
		log.Warn(log.CatStore, "directory sync failed", "error", err)
	}

	return nil
}

// Quarantine renames an unparseable store file aside with a timestamped
// .corrupt suffix and returns the quarantine path. The file is preserved for
// inspection, never deleted.
func (fs *FileStore) Quarantine() (string, error) {
	stamp := time.Now().Format(backupTimestamp)
	quarantined := fs.Path() + ".corrupt." + stamp
	if err := os.Rename(fs.Path(), quarantined); err != nil {
		return "", fmt.Errorf("quarantining store file: %w", err)
	}
	log.Warn(log.CatStore, "store file quarantined", "path", quarantined)
	return quarantined, nil
}

// Backups lists existing backup paths, oldest first.
func (fs *FileStore) Backups() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.baseDir, backupDirName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "flowstate-") {
			continue
		}
		paths = append(paths, filepath.Join(fs.baseDir, backupDirName, entry.Name()))
	}
	// Timestamps embed in the name, so lexical order is chronological.
	sort.Strings(paths)
	return paths, nil
}

// backupCurrent copies the current store file into the backup directory and
// prunes backups beyond the retention count, oldest first.
func (fs *FileStore) backupCurrent() error {
	src, err := os.Open(fs.Path())
	if os.IsNotExist(err) {
		return nil // nothing to back up
	}
	if err != nil {
		return fmt.Errorf("opening store file for backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	stamp := time.Now().Format(backupTimestamp)
	name := fmt.Sprintf("flowstate-%s.json", stamp)
	dstPath := filepath.Join(fs.baseDir, backupDirName, name)

	dst, err := os.Create(dstPath) //nolint:gosec // G304: path is constructed inside the base dir
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("copying backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing backup file: %w", err)
	}

	return fs.pruneBackups()
}

func (fs *FileStore) pruneBackups() error {
	backups, err := fs.Backups()
	if err != nil {
		return err
	}
	for len(backups) > fs.backupRetention {
		if err := os.Remove(backups[0]); err != nil {
			return fmt.Errorf("pruning backup: %w", err)
		}
		log.Debug(log.CatStore, "pruned backup", "path", backups[0])
		backups = backups[1:]
	}
	return nil
}

// syncDir fsyncs a directory so a rename survives power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // G304: dir is the store base directory
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
