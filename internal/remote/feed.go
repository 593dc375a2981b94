package remote

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	feedReconnectMin = 5 * time.Second
	feedReconnectMax = 5 * time.Minute

	// feedReadLimit caps feed frames. Notifications are tiny JSON
	// objects; anything larger indicates a misbehaving server.
	feedReadLimit = 64 * 1024

	// feedJitterDivisor controls the range of random jitter added to
	// reconnect backoff: jitter is uniform in [0, backoff/feedJitterDivisor).
	feedJitterDivisor = 2

	// feedBackoffMultiplier is the exponential growth factor applied to
	// the reconnect backoff after each consecutive failure.
	feedBackoffMultiplier = 2
)

//go:generate mockgen -source=feed.go -destination=mock_feed_test.go -package=remote

// feedConn abstracts the WebSocket connection so the feed can be tested
// without a real server. *websocket.Conn satisfies this interface.
type feedConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// Feed subscribes to the content store's change-notification channel.
// Each notification names an entity kind whose change stream advanced;
// the subscriber is expected to run a reconciliation for that kind.
type Feed struct {
	url    string
	token  string
	logger *slog.Logger

	// dial is swapped in tests to inject a mock connection.
	dial func(ctx context.Context) (feedConn, error)
}

// NewFeed creates a change feed client for the given WebSocket URL.
func NewFeed(url, token string, logger *slog.Logger) *Feed {
	f := &Feed{
		url:    url,
		token:  token,
		logger: logger,
	}
	f.dial = f.dialWebSocket

	return f
}

func (f *Feed) dialWebSocket(ctx context.Context) (feedConn, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	conn, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing change feed: %w", err)
	}

	conn.SetReadLimit(feedReadLimit)

	return conn, nil
}

// Listen connects to the feed and invokes notify for every change
// notification, reconnecting with exponential backoff and jitter when
// the connection drops. Returns only on context cancellation.
func (f *Feed) Listen(ctx context.Context, notify func(Kind)) error {
	backoff := feedReconnectMin

	for {
		conn, err := f.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			f.logger.Warn("change feed connect failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)

			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}

			backoff = min(backoff*feedBackoffMultiplier, feedReconnectMax)

			continue
		}

		backoff = feedReconnectMin

		err = f.readLoop(ctx, conn, notify)
		conn.Close(websocket.StatusGoingAway, "reconnecting")

		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("change feed disconnected, reconnecting",
			slog.String("error", err.Error()),
		)

		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
	}
}

// readLoop reads notifications from one connection until it fails.
func (f *Feed) readLoop(ctx context.Context, conn feedConn, notify func(Kind)) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading feed message: %w", err)
		}

		if typ == websocket.MessageBinary {
			f.logger.Debug("unexpected binary frame on change feed", slog.Int("bytes", len(data)))
			continue
		}

		op := gjson.GetBytes(data, "op").Str

		switch op {
		case "ping":
			continue

		case "change":
			kind := Kind(gjson.GetBytes(data, "kind").Str)
			if !kind.Valid() {
				f.logger.Debug("change notification for unknown kind",
					slog.String("kind", kind.String()),
				)

				continue
			}

			notify(kind)

		default:
			f.logger.Debug("unexpected feed message", slog.String("op", op))
		}
	}
}

func sleepWithJitter(ctx context.Context, backoff time.Duration) error {
	jitter := time.Duration(rand.Int64N(int64(backoff) / feedJitterDivisor)) //nolint:gosec // G404: math/rand is fine for reconnect jitter, no security impact

	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
