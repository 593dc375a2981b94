package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/content-mirror/internal/config"
	mirrorerrors "github.com/alexjbarnes/content-mirror/internal/errors"
	"github.com/alexjbarnes/content-mirror/internal/logging"
	"github.com/alexjbarnes/content-mirror/internal/remote"
	"github.com/alexjbarnes/content-mirror/internal/state"
	"github.com/alexjbarnes/content-mirror/internal/sync"
)

var Version = "dev"

const usage = `usage: content-mirror <command> [kind]

commands:
  pull            one incremental pass over every enabled kind
  watch           pull, then follow the change feed until interrupted
  reset [kind]    discard local state for one kind (or all enabled)

kinds: content, email-templates, comments, settings
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("content-mirror starting",
		slog.String("version", Version),
		slog.String("command", command),
		slog.String("mirror_dir", cfg.MirrorDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snaps, err := state.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snaps.Close()

	client := remote.NewClient(&http.Client{Timeout: cfg.RequestTimeout}, cfg.APIBaseURL, cfg.APIToken)
	syncer := sync.NewSyncer(cfg, client, snaps, logger)

	switch command {
	case "pull":
		return runPull(ctx, cfg, syncer)
	case "watch":
		return runWatch(ctx, cfg, syncer, logger)
	case "reset":
		return runReset(cfg, syncer, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)

		return fmt.Errorf("unknown command: %s", command)
	}
}

// runPull syncs every enabled kind once. Kinds are independent trees,
// so they run concurrently.
func runPull(ctx context.Context, cfg *config.Config, syncer *sync.Syncer) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, kind := range cfg.EnabledKinds() {
		g.Go(func() error {
			if _, err := syncer.Sync(gctx, kind, sync.Options{}); err != nil {
				return fmt.Errorf("syncing %s: %w", kind, err)
			}

			return nil
		})
	}

	return g.Wait()
}

func runWatch(ctx context.Context, cfg *config.Config, syncer *sync.Syncer, logger *slog.Logger) error {
	if cfg.FeedURL == "" {
		return fmt.Errorf("CONTENT_FEED_URL is required for watch mode")
	}

	feed := remote.NewFeed(cfg.FeedURL, cfg.APIToken, logger)
	watcher := sync.NewWatcher(cfg, syncer, feed, logger)

	err := watcher.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")

		return nil
	}

	return err
}

func runReset(cfg *config.Config, syncer *sync.Syncer, args []string) error {
	kinds := cfg.EnabledKinds()

	if len(args) > 0 {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}

		kinds = []remote.Kind{kind}
	}

	for _, kind := range kinds {
		if err := syncer.Reset(kind); err != nil {
			return fmt.Errorf("resetting %s: %w", kind, err)
		}
	}

	return nil
}

// parseKind accepts either the kind name or its directory name.
func parseKind(arg string) (remote.Kind, error) {
	arg = strings.TrimSpace(arg)

	if kind := remote.Kind(arg); kind.Valid() {
		return kind, nil
	}

	for _, kind := range remote.AllKinds() {
		if kind.DirName() == arg {
			return kind, nil
		}
	}

	return "", fmt.Errorf("%w: %s", mirrorerrors.ErrUnknownKind, arg)
}
