package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/alexjbarnes/content-mirror/internal/mirror"
	"github.com/alexjbarnes/content-mirror/internal/remote"
	"github.com/alexjbarnes/content-mirror/internal/state"
	"github.com/tidwall/gjson"
)

// Summary reports what one reconciliation pass did.
type Summary struct {
	Applied   int
	Deleted   int
	Skipped   int
	Conflicts int
}

// Add folds another summary into this one.
func (s *Summary) Add(other Summary) {
	s.Applied += other.Applied
	s.Deleted += other.Deleted
	s.Skipped += other.Skipped
	s.Conflicts += other.Conflicts
}

// Reconciler applies a change set for one entity kind to the local
// mirror. It is built fresh for each pass around a newly built
// identifier index, so file moves made between passes are observed.
type Reconciler struct {
	mirror      *mirror.Mirror
	index       *mirror.Index
	snaps       *state.Store
	kind        remote.Kind
	defaultLang string
	force       bool
	logger      *slog.Logger

	conflicts int
}

// NewReconciler creates a reconciler for one pass. When force is set,
// remote content overwrites local files without merging.
func NewReconciler(m *mirror.Mirror, idx *mirror.Index, snaps *state.Store, kind remote.Kind, defaultLang string, force bool, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		mirror:      m,
		index:       idx,
		snaps:       snaps,
		kind:        kind,
		defaultLang: defaultLang,
		force:       force,
		logger:      logger,
	}
}

// Apply processes a change set: upserts first, then record deletions,
// then media deletions. A deletion delivered in the same batch as an
// upsert of the same record therefore wins. Failures are logged and
// counted as skips; they never abort the rest of the batch.
func (r *Reconciler) Apply(cs *remote.ChangeSet) Summary {
	var sum Summary

	for _, rec := range cs.Items {
		if err := r.applyRecord(rec); err != nil {
			r.logger.Error("Failed to apply record", "id", rec.ID, "slug", rec.Slug, "error", err)

			sum.Skipped++

			continue
		}

		sum.Applied++
	}

	for _, del := range cs.Deleted {
		n, err := r.applyDeletion(del)
		if err != nil {
			r.logger.Error("Failed to apply deletion", "id", del.ID, "error", err)

			sum.Skipped++

			continue
		}

		sum.Deleted += n
	}

	for _, del := range cs.DeletedMedia {
		if err := r.mirror.DeleteFile(mirror.MediaPath(del.ScopeID, del.Name)); err != nil {
			r.logger.Error("Failed to delete media", "scope_id", del.ScopeID, "name", del.Name, "error", err)

			sum.Skipped++

			continue
		}

		sum.Deleted++
	}

	sum.Conflicts = r.conflicts
	r.conflicts = 0

	return sum
}

func (r *Reconciler) applyRecord(rec remote.Record) error {
	if r.kind == remote.KindComment {
		return r.applyComment(rec)
	}

	target := mirror.RecordPath(rec, r.defaultLang)

	rendered, err := mirror.Render(rec, mirror.FormatFor(rec.ContentType))
	if err != nil {
		return err
	}

	local, stale, err := r.currentContent(rec.ID, target)
	if err != nil {
		return err
	}

	output := rendered

	switch {
	case local == nil, r.force, string(local) == string(rendered):
		// Nothing local to preserve.
	default:
		base, err := r.baseContent(rec)
		if err != nil {
			return err
		}

		// Without an ancestor there is nothing to diff against; the
		// remote version wins outright.
		if len(base) > 0 && string(local) != string(base) {
			res := Merge(string(base), string(local), string(rendered))
			output = []byte(res.Merged)

			if !res.Clean {
				r.conflicts += res.Conflicts

				r.logger.Warn("Merge produced conflicts",
					"id", rec.ID, "path", target, "conflicts", res.Conflicts)
			}
		}
	}

	if err := r.mirror.WriteFile(target, output); err != nil {
		return err
	}

	// Stale paths are removed only after the target write succeeded, so
	// a failure mid-move never loses the record entirely.
	for _, p := range stale {
		if err := r.removeFrom(p, rec.ID); err != nil {
			return err
		}
	}

	if err := r.snaps.SetBase(r.kind, rec.ID, rendered); err != nil {
		return err
	}

	r.index.Set(rec.ID, target)

	return nil
}

// currentContent locates the record's current local presence: the
// content to merge against and any stale paths (previous slug, type, or
// language) that must be cleaned up. When the record only exists at a
// stale path, that copy carries the local edits.
func (r *Reconciler) currentContent(id int64, target string) (local []byte, stale []string, err error) {
	for _, p := range r.index.Lookup(id) {
		if p != target {
			stale = append(stale, p)
		}
	}

	local, err = r.mirror.ReadFile(target)

	switch {
	case err == nil:
		return local, stale, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, nil, err
	}

	for _, p := range stale {
		data, readErr := r.mirror.ReadFile(p)
		if readErr != nil {
			if errors.Is(readErr, fs.ErrNotExist) {
				continue
			}

			return nil, nil, readErr
		}

		return data, stale, nil
	}

	return nil, stale, nil
}

// baseContent resolves the merge ancestor. A server-supplied previous
// version wins; otherwise the snapshot of what this client last wrote
// is used. When neither exists the result is nil and the caller takes
// the remote version as-is.
func (r *Reconciler) baseContent(rec remote.Record) ([]byte, error) {
	if rec.Previous != nil {
		return mirror.Render(*rec.Previous, mirror.FormatFor(rec.Previous.ContentType))
	}

	base, err := r.snaps.Base(r.kind, rec.ID)
	if err != nil {
		return nil, err
	}

	return base, nil
}

// applyDeletion removes every local presence of the record and returns
// how many files were actually touched. Unknown ids are a no-op.
func (r *Reconciler) applyDeletion(del remote.Deletion) (int, error) {
	paths := r.index.Lookup(del.ID)

	removed := 0

	for _, p := range append([]string(nil), paths...) {
		if err := r.removeFrom(p, del.ID); err != nil {
			return removed, err
		}

		removed++
	}

	if err := r.snaps.DeleteBase(r.kind, del.ID); err != nil {
		return removed, err
	}

	return removed, nil
}

// removeFrom deletes one presence of a record: the file itself for
// regular records, or the matching entry inside a comment container.
// A container emptied by the removal is deleted.
func (r *Reconciler) removeFrom(relPath string, id int64) error {
	if r.kind == remote.KindComment {
		data, err := r.mirror.ReadFile(relPath)

		switch {
		case errors.Is(err, fs.ErrNotExist):
			r.index.Remove(id, relPath)

			return nil
		case err != nil:
			return err
		}

		remaining, empty, err := removeCommentEntry(data, id)
		if err != nil {
			return err
		}

		if empty {
			if err := r.mirror.DeleteFile(relPath); err != nil {
				return err
			}
		} else if err := r.mirror.WriteFile(relPath, remaining); err != nil {
			return err
		}

		r.index.Remove(id, relPath)

		return nil
	}

	if err := r.mirror.DeleteFile(relPath); err != nil {
		return err
	}

	r.index.Remove(id, relPath)

	return nil
}

// applyComment upserts one comment into its thread container. Comments
// are remote-authoritative; container files are regenerated rather than
// merged.
func (r *Reconciler) applyComment(rec remote.Record) error {
	target := mirror.CommentContainerPath(rec.Slug)

	// A comment found in a different container moved threads; drop the
	// old entry first.
	for _, p := range r.index.Lookup(rec.ID) {
		if p == target {
			continue
		}

		if err := r.removeFrom(p, rec.ID); err != nil {
			return err
		}
	}

	existing, err := r.mirror.ReadFile(target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	updated, err := upsertCommentEntry(existing, mirror.NewCommentEntry(rec))
	if err != nil {
		return err
	}

	if err := r.mirror.WriteFile(target, updated); err != nil {
		return err
	}

	r.index.Add(rec.ID, target)

	return nil
}

// upsertCommentEntry replaces the entry with the same id in a JSON
// array container, or appends when absent. Other entries pass through
// byte-identical.
func upsertCommentEntry(container []byte, entry mirror.CommentEntry) ([]byte, error) {
	var entries []json.RawMessage

	if len(container) > 0 {
		if err := json.Unmarshal(container, &entries); err != nil {
			return nil, fmt.Errorf("parsing comment container: %w", err)
		}
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding comment entry: %w", err)
	}

	replaced := false

	for i, raw := range entries {
		if gjson.GetBytes(raw, "id").Int() == entry.ID {
			entries[i] = encoded
			replaced = true

			break
		}
	}

	if !replaced {
		entries = append(entries, encoded)
	}

	return marshalContainer(entries)
}

// removeCommentEntry drops the entry with the given id and reports
// whether the container is now empty.
func removeCommentEntry(container []byte, id int64) ([]byte, bool, error) {
	var entries []json.RawMessage

	if err := json.Unmarshal(container, &entries); err != nil {
		return nil, false, fmt.Errorf("parsing comment container: %w", err)
	}

	kept := entries[:0]

	for _, raw := range entries {
		if gjson.GetBytes(raw, "id").Int() == id {
			continue
		}

		kept = append(kept, raw)
	}

	if len(kept) == 0 {
		return nil, true, nil
	}

	out, err := marshalContainer(kept)

	return out, false, err
}

func marshalContainer(entries []json.RawMessage) ([]byte, error) {
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding comment container: %w", err)
	}

	return append(out, '\n'), nil
}
