package mirror

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

const (
	// mirrorDirPerm is the permission mode for directories created
	// inside the mirror. Group and other get read+execute so editors
	// and static site tooling can read the tree.
	mirrorDirPerm = fs.FileMode(0o755)

	// mirrorFilePerm is the permission mode for files written inside
	// the mirror.
	mirrorFilePerm = fs.FileMode(0o644)
)

// Mirror provides thread-safe filesystem operations on one entity
// kind's subtree. All writes are serialized by an exclusive lock; reads
// take a shared lock to prevent reading partial writes.
type Mirror struct {
	dir string
	mu  sync.RWMutex
}

// New creates a Mirror rooted at the given directory, creating it if it
// does not exist. The directory must be an absolute path (resolved at
// config load time).
func New(dir string) (*Mirror, error) {
	if dir == "" {
		return nil, fmt.Errorf("mirror directory must not be empty")
	}

	if err := os.MkdirAll(dir, mirrorDirPerm); err != nil {
		return nil, fmt.Errorf("creating mirror directory %s: %w", dir, err)
	}

	return &Mirror{dir: dir}, nil
}

// Dir returns the root directory of the mirror.
func (m *Mirror) Dir() string {
	return m.dir
}

// ReadFile reads a file by relative path.
func (m *Mirror) ReadFile(relPath string) ([]byte, error) {
	absPath, err := m.resolve(relPath)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return os.ReadFile(absPath) //nolint:gosec // G304: absPath validated by Mirror.resolve
}

// WriteFile writes content to a file by relative path, creating parent
// directories as needed.
func (m *Mirror) WriteFile(relPath string, data []byte) error {
	absPath, err := m.resolve(relPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, mirrorDirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", relPath, err)
	}

	if err := os.WriteFile(absPath, data, mirrorFilePerm); err != nil {
		return fmt.Errorf("writing %s: %w", relPath, err)
	}

	return nil
}

// DeleteFile removes a file by relative path. Returns nil if the file
// does not exist; deletion is idempotent.
func (m *Mirror) DeleteFile(relPath string) error {
	absPath, err := m.resolve(relPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = os.Remove(absPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", relPath, err)
	}

	return nil
}

// Stat returns file info for a relative path. Takes a read lock to
// ensure the file isn't being written mid-stat.
func (m *Mirror) Stat(relPath string) (os.FileInfo, error) {
	absPath, err := m.resolve(relPath)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return os.Stat(absPath)
}

// RemoveTree deletes the entire mirror subtree. Used by the reset entry
// point; a missing tree is not an error.
func (m *Mirror) RemoveTree() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.RemoveAll(m.dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing mirror tree %s: %w", m.dir, err)
	}

	return nil
}

// resolve converts a relative path to an absolute path within the
// mirror directory, rejecting path traversal attempts. Validates
// against null bytes, ".." segments, and symlinks that escape the
// mirror. Slugs and names arrive from the remote store, so they are
// treated as untrusted input.
func (m *Mirror) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}

	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("path contains null byte: %q", relPath)
	}

	// Normalize backslashes to forward slashes so the ".." segment
	// check below catches Windows-style traversal.
	relPath = strings.ReplaceAll(relPath, "\\", "/")

	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path contains ..: %q", relPath)
		}
	}

	absPath := filepath.Join(m.dir, relPath)
	if !strings.HasPrefix(absPath, m.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal blocked: %q resolves outside mirror dir", relPath)
	}

	// Resolve symlinks and verify the real path stays within the mirror.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// New file: check the parent instead. A parent symlink
			// pointing outside is still a traversal.
			parentReal, pErr := filepath.EvalSymlinks(filepath.Dir(absPath))
			if pErr != nil {
				// Parent doesn't exist either; MkdirAll will create it
				// and the prefix check above already passed.
				return absPath, nil //nolint:nilerr // intentional: parent will be created by MkdirAll
			}

			prefix := m.dir + string(os.PathSeparator)
			if !strings.HasPrefix(parentReal+string(os.PathSeparator), prefix) && parentReal != m.dir {
				return "", fmt.Errorf("symlink traversal blocked: parent of %q resolves to %q outside mirror", relPath, parentReal)
			}

			return absPath, nil
		}

		return "", fmt.Errorf("resolving symlinks for %q: %w", relPath, err)
	}

	if !strings.HasPrefix(realPath, m.dir+string(os.PathSeparator)) && realPath != m.dir {
		return "", fmt.Errorf("symlink traversal blocked: %q resolves to %q outside mirror dir", relPath, realPath)
	}

	return absPath, nil
}

// NormalizePath normalizes a mirror-relative path: OS-native separators
// become forward slashes, non-breaking spaces become regular spaces,
// repeated slashes collapse, leading/trailing slashes are trimmed, and
// Unicode NFC normalization is applied. Call this on every path entering
// the system: walk output and paths computed from remote slugs.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, " ", " ")
	path = strings.ReplaceAll(path, " ", " ")

	var b strings.Builder

	prevSlash := false

	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	path = strings.Trim(b.String(), "/")

	return norm.NFC.String(path)
}
