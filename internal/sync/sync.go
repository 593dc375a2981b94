package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/content-mirror/internal/config"
	"github.com/alexjbarnes/content-mirror/internal/cursor"
	syncerrors "github.com/alexjbarnes/content-mirror/internal/errors"
	"github.com/alexjbarnes/content-mirror/internal/logging"
	"github.com/alexjbarnes/content-mirror/internal/mirror"
	"github.com/alexjbarnes/content-mirror/internal/remote"
	"github.com/alexjbarnes/content-mirror/internal/state"
)

// Options adjusts one sync pass.
type Options struct {
	// ForceOverwrite writes remote content without merging local edits.
	// Used by the watch loop, where the operator has opted into the
	// mirror being remote-authoritative.
	ForceOverwrite bool
}

// changeFetcher is the remote surface the syncer needs. Satisfied by
// remote.Client.
type changeFetcher interface {
	FetchChanges(ctx context.Context, kind remote.Kind, cursor string, limit int) (*remote.ChangeSet, string, error)
}

// Syncer drives incremental synchronization of enabled entity kinds
// into the local mirror.
type Syncer struct {
	cfg    *config.Config
	client changeFetcher
	snaps  *state.Store
	logger *slog.Logger

	// guards serializes passes per kind. Concurrent passes over
	// different kinds are independent; two passes over the same kind
	// would race on the cursor file and the index.
	mu     sync.Mutex
	guards map[remote.Kind]*sync.Mutex
}

// NewSyncer creates a syncer over the given remote client and snapshot
// store.
func NewSyncer(cfg *config.Config, client changeFetcher, snaps *state.Store, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:    cfg,
		client: client,
		snaps:  snaps,
		logger: logger,
		guards: make(map[remote.Kind]*sync.Mutex),
	}
}

func (s *Syncer) guard(kind remote.Kind) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guards[kind]
	if !ok {
		g = &sync.Mutex{}
		s.guards[kind] = g
	}

	return g
}

// Sync runs one incremental pass for a kind: load the cursor, fetch
// changes, rebuild the identifier index, apply, and commit the new
// cursor. The cursor is committed only when the fetch loop completed
// without error; a partial batch is still applied, so retried work is
// re-applied idempotently.
func (s *Syncer) Sync(ctx context.Context, kind remote.Kind, opts Options) (Summary, error) {
	if !s.cfg.KindEnabled(kind) {
		return Summary{}, fmt.Errorf("%w: %s", syncerrors.ErrKindDisabled, kind)
	}

	g := s.guard(kind)
	g.Lock()
	defer g.Unlock()

	logger := logging.ForKind(s.logger, kind.String())

	kindDir := s.cfg.KindDir(kind)

	m, err := mirror.New(kindDir)
	if err != nil {
		return Summary{}, err
	}

	cur, err := cursor.Load(kindDir)
	if err != nil {
		return Summary{}, err
	}

	cs, next, fetchErr := s.client.FetchChanges(ctx, kind, cur, s.cfg.PageLimit)

	if cs.Empty() {
		if fetchErr != nil {
			return Summary{}, fetchErr
		}

		logger.Debug("No changes", "cursor", cur)

		if next != cur {
			if err := cursor.Commit(kindDir, next); err != nil {
				return Summary{}, err
			}
		}

		return Summary{}, nil
	}

	idx, err := mirror.BuildIndex(m)
	if err != nil {
		return Summary{}, err
	}

	rec := NewReconciler(m, idx, s.snaps, kind, s.cfg.DefaultLanguage, opts.ForceOverwrite, logger)

	sum := rec.Apply(cs)

	if fetchErr != nil {
		logger.Warn("Partial sync, cursor not advanced",
			"applied", sum.Applied, "deleted", sum.Deleted, "skipped", sum.Skipped, "error", fetchErr)

		return sum, fetchErr
	}

	if err := cursor.Commit(kindDir, next); err != nil {
		return sum, err
	}

	logger.Info("Sync complete",
		"applied", sum.Applied,
		"deleted", sum.Deleted,
		"skipped", sum.Skipped,
		"conflicts", sum.Conflicts,
		"cursor", next)

	return sum, nil
}

// Reset discards all local state for a kind: the mirror subtree, the
// cursor, and the base snapshots. The next pass re-fetches from the
// beginning of history.
func (s *Syncer) Reset(kind remote.Kind) error {
	g := s.guard(kind)
	g.Lock()
	defer g.Unlock()

	kindDir := s.cfg.KindDir(kind)

	m, err := mirror.New(kindDir)
	if err != nil {
		return err
	}

	if err := m.RemoveTree(); err != nil {
		return err
	}

	if err := cursor.Reset(kindDir); err != nil {
		return err
	}

	if err := s.snaps.DropKind(kind); err != nil {
		return err
	}

	s.logger.Info("Reset complete", "kind", kind)

	return nil
}
