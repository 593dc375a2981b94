package mirror

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Index maps record identifiers onto the mirror-relative paths that
// currently hold them. It is rebuilt from the file tree at the start of
// every reconciliation run, so renames and manual moves between runs
// are always observed.
type Index struct {
	paths map[int64][]string
}

// BuildIndex scans the mirror tree and extracts an identifier from
// every recognizable file. Dotfiles and dot-directories (cursor files,
// editor state) are skipped. A JSON array container contributes one
// entry per element, all pointing at the container path. Indexed paths
// are in NormalizePath form.
func BuildIndex(m *Mirror) (*Index, error) {
	idx := &Index{paths: make(map[int64][]string)}

	root := m.Dir()

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if strings.HasPrefix(d.Name(), ".") && p != root {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", p, err)
		}

		rel = filepath.ToSlash(rel)

		data, err := m.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", rel, err)
		}

		// Index under the canonical spelling so lookups by computed
		// record paths match regardless of the on-disk Unicode form.
		rel = NormalizePath(rel)

		if strings.HasSuffix(rel, ".json") {
			if ids := ExtractContainerIDs(data); ids != nil {
				for _, id := range ids {
					idx.Add(id, rel)
				}

				return nil
			}
		}

		if id, ok := ExtractID(data, rel); ok {
			idx.Add(id, rel)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building identifier index: %w", err)
	}

	return idx, nil
}

// Lookup returns every path currently associated with the identifier.
func (i *Index) Lookup(id int64) []string {
	return i.paths[id]
}

// Add associates a path with an identifier. Duplicate associations are
// ignored.
func (i *Index) Add(id int64, relPath string) {
	for _, p := range i.paths[id] {
		if p == relPath {
			return
		}
	}

	i.paths[id] = append(i.paths[id], relPath)
}

// Remove drops one path association. Other paths for the same
// identifier are untouched.
func (i *Index) Remove(id int64, relPath string) {
	existing := i.paths[id]

	kept := existing[:0]

	for _, p := range existing {
		if p != relPath {
			kept = append(kept, p)
		}
	}

	if len(kept) == 0 {
		delete(i.paths, id)

		return
	}

	i.paths[id] = kept
}

// Set replaces every association of the identifier with a single path.
func (i *Index) Set(id int64, relPath string) {
	i.paths[id] = []string{relPath}
}

// Len reports how many identifiers the index knows about.
func (i *Index) Len() int {
	return len(i.paths)
}
