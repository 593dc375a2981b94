package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// NextCursorHeader carries the next sync cursor. It is delivered out of
// band so the payload body stays a plain list of changes.
const NextCursorHeader = "X-Next-Cursor"

// maxPages bounds a single fetch loop as a guard against a server that
// keeps issuing fresh cursors without ever converging.
const maxPages = 10_000

// FetchChanges requests "what changed since cursor" pages for one entity
// kind until the server signals completion, accumulating changed items
// and deletions. It returns the accumulated set, the cursor to commit,
// and an error. On error the partial accumulation is still returned so
// the caller can apply it; the returned cursor is then the one sent
// with the failed request, never one covering unfetched data. Callers
// must not durably commit a cursor from a failed loop.
//
// Termination, in priority order: a 204 No Content page stops the loop;
// a returned cursor equal to the cursor just sent stops the loop (guards
// against a server bug that would otherwise spin forever); otherwise the
// loop continues with the new cursor.
func (c *Client) FetchChanges(ctx context.Context, kind Kind, cursor string, limit int) (*ChangeSet, string, error) {
	set := &ChangeSet{}

	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))

		if cursor != "" {
			q.Set("cursor", cursor)
		}

		endpoint := "/v1/" + kind.APIPath() + "/changes?" + q.Encode()

		var body changePage

		status, header, err := c.get(ctx, endpoint, &body)
		if err != nil {
			return set, cursor, fmt.Errorf("fetching %s changes: %w", kind, err)
		}

		if status == http.StatusNoContent {
			return set, cursor, nil
		}

		set.Items = append(set.Items, body.Items...)
		set.Deleted = append(set.Deleted, body.Deleted...)
		set.DeletedMedia = append(set.DeletedMedia, body.DeletedMedia...)

		next := header.Get(NextCursorHeader)
		if next == "" || next == cursor {
			return set, cursor, nil
		}

		cursor = next
	}

	return set, cursor, fmt.Errorf("fetching %s changes: server did not converge after %d pages", kind, maxPages)
}
