package mnists

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLockTimeout is the default timeout for acquiring cache file locks.
const DefaultLockTimeout = 5 * time.Minute

// EnvRootDir is the environment variable consulted for the cache root when
// no explicit root is configured.
const EnvRootDir = "MNISTS_DIR"

// DefaultRootDir returns the default cache root: the mnists subdirectory of
// the system temporary directory.
func DefaultRootDir() string {
	return filepath.Join(os.TempDir(), "mnists")
}

// resolveRootDir picks the cache root.
// Priority: explicit override > MNISTS_DIR > DefaultRootDir().
func resolveRootDir(override string) string {
	if override != "" {
		return override
	}
	if envDir := os.Getenv(EnvRootDir); envDir != "" {
		return envDir
	}
	return DefaultRootDir()
}

// storage handles all cache filesystem operations under one root directory.
// Cache layout: <root>/<descriptor dir>/<file name as published upstream>.
type storage struct {
	// root is the cache root directory.
	root string

	// lockTimeout is the maximum duration to wait for file lock acquisition.
	lockTimeout time.Duration
}

// newStorage creates a storage for the resolved cache root.
func newStorage(rootOverride string) *storage {
	return &storage{
		root:        resolveRootDir(rootOverride),
		lockTimeout: DefaultLockTimeout,
	}
}

// dirPath returns the absolute path of one variant's cache directory.
func (s *storage) dirPath(dir string) string {
	return filepath.Join(s.root, dir)
}

// filePath returns the absolute path of one cached file.
func (s *storage) filePath(dir, filename string) string {
	return filepath.Join(s.root, dir, filename)
}

// ensureDir creates a directory and all parent directories if they don't exist.
func (s *storage) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrStorage, path, err)
	}
	return nil
}

// installStream writes r to path through a temp file in the same directory
// followed by an atomic rename. On any failure the temp file is removed and
// nothing is left at path. Errors already classified by the reader
// (ErrDownload, ErrIntegrity) pass through unchanged; everything else is a
// storage failure.
func (s *storage) installStream(path string, r io.Reader) (int64, error) {
	if err := s.ensureDir(filepath.Dir(path)); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create temp file: %v", ErrStorage, err)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		if errors.Is(err, ErrDownload) || errors.Is(err, ErrIntegrity) || errors.Is(err, ErrFormat) {
			return n, err
		}
		return n, fmt.Errorf("%w: failed to write %s: %v", ErrStorage, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return n, fmt.Errorf("%w: failed to write %s: %v", ErrStorage, filepath.Base(path), err)
	}

	// Atomic rename
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name()) // cleanup on failure
		return n, fmt.Errorf("%w: failed to rename temp file: %v", ErrStorage, err)
	}

	return n, nil
}

// removeDir deletes one variant's cache directory and all its contents.
func (s *storage) removeDir(dir string) error {
	if err := os.RemoveAll(s.dirPath(dir)); err != nil {
		return fmt.Errorf("%w: failed to remove %s: %v", ErrStorage, dir, err)
	}
	return nil
}

// verifyFile reports whether the file at path exists and matches the
// expected hex MD5 checksum. An empty checksum degrades to an existence
// check, matching descriptors without published sums.
func (s *storage) verifyFile(path, wantMD5 string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to stat %s: %v", ErrStorage, path, err)
	}
	if wantMD5 == "" {
		return true, nil
	}
	sum, err := fileMD5(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sum, wantMD5), nil
}

// fileMD5 returns the hex MD5 checksum of the file at path.
// Upstream publishes MD5 sums for every MNIST-family file, so MD5 is the
// integrity algorithm throughout.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", ErrStorage, path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", ErrStorage, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// lockFilePath returns the advisory lock file guarding writes to path.
// The lock file sits next to the target so it shares the same filesystem.
func lockFilePath(path string) string {
	return path + ".lock"
}
