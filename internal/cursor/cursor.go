// Package cursor persists one opaque sync cursor per entity kind. The
// cursor is an opaque server token; the client never assumes structure.
package cursor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FileName is the cursor file stored inside each entity kind's
	// mirror directory.
	FileName = ".sync-cursor"

	// legacySuffix is appended to the kind directory name to form the
	// old sibling cursor location used before the in-directory layout.
	legacySuffix = ".cursor"

	cursorDirPerm  = fs.FileMode(0o755)
	cursorFilePerm = fs.FileMode(0o600)
)

// legacyPath returns the pre-upgrade cursor location: a sibling of the
// kind directory rather than inside it.
func legacyPath(kindDir string) string {
	return strings.TrimRight(kindDir, string(os.PathSeparator)) + legacySuffix
}

// Load reads the cursor for the entity kind rooted at kindDir, or ""
// when no sync has completed yet. A legacy cursor found at the old
// sibling location is returned as-is; it is removed by the first Commit
// so an interrupted run keeps re-reading it rather than losing it.
func Load(kindDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(kindDir, FileName))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading cursor: %w", err)
	}

	data, err = os.ReadFile(legacyPath(kindDir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", fmt.Errorf("reading legacy cursor: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Commit durably records the cursor inside the kind directory and
// removes the legacy sibling file, completing the one-time migration.
// Callers must invoke this only after an entire fetch loop succeeded;
// partial progress is never durably recorded.
func Commit(kindDir, cur string) error {
	if err := os.MkdirAll(kindDir, cursorDirPerm); err != nil {
		return fmt.Errorf("creating kind directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(kindDir, FileName), []byte(cur+"\n"), cursorFilePerm); err != nil {
		return fmt.Errorf("writing cursor: %w", err)
	}

	if err := os.Remove(legacyPath(kindDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing legacy cursor: %w", err)
	}

	return nil
}

// Reset removes the cursor in both locations. A missing file is not an
// error.
func Reset(kindDir string) error {
	if err := os.Remove(filepath.Join(kindDir, FileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cursor: %w", err)
	}

	if err := os.Remove(legacyPath(kindDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing legacy cursor: %w", err)
	}

	return nil
}
