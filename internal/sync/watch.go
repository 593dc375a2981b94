package sync

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/content-mirror/internal/config"
	"github.com/alexjbarnes/content-mirror/internal/remote"
)

// feedListener is the change-feed surface the watcher needs. Satisfied
// by remote.Feed.
type feedListener interface {
	Listen(ctx context.Context, notify func(remote.Kind)) error
}

// Watcher keeps the mirror continuously up to date: an initial pull of
// every enabled kind, then incremental passes driven by the change
// feed. Watch passes force-overwrite, the operator having opted into a
// remote-authoritative mirror.
type Watcher struct {
	cfg    *config.Config
	syncer *Syncer
	feed   feedListener
	logger *slog.Logger
}

// NewWatcher wires a watcher over an existing syncer and feed.
func NewWatcher(cfg *config.Config, syncer *Syncer, feed feedListener, logger *slog.Logger) *Watcher {
	return &Watcher{cfg: cfg, syncer: syncer, feed: feed, logger: logger}
}

// Run blocks until the context is cancelled or the feed fails
// permanently. Transient sync failures are logged and retried on the
// next feed event rather than tearing the watcher down.
func (w *Watcher) Run(ctx context.Context) error {
	for _, kind := range w.cfg.EnabledKinds() {
		if _, err := w.syncer.Sync(ctx, kind, Options{}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.logger.Error("Initial sync failed", "kind", kind, "error", err)
		}
	}

	// Feed events are collapsed into a small buffer; a burst of events
	// for one kind needs only one pass to catch up, so dropping
	// overflow is safe.
	events := make(chan remote.Kind, 16)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.feed.Listen(ctx, func(kind remote.Kind) {
			if !w.cfg.KindEnabled(kind) {
				return
			}

			select {
			case events <- kind:
			default:
				w.logger.Debug("Event buffer full, dropping", "kind", kind)
			}
		})
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case kind := <-events:
				if _, err := w.syncer.Sync(ctx, kind, Options{ForceOverwrite: true}); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}

					w.logger.Error("Sync failed", "kind", kind, "error", err)
				}
			}
		}
	})

	return g.Wait()
}
