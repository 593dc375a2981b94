package mirror

import (
	"path"

	"github.com/alexjbarnes/content-mirror/internal/remote"
)

// RecordPath computes the canonical location of a record inside its
// kind directory: an optional language segment for non-default
// languages, the type folder when the format has one, and the slug with
// the format extension. The result is NormalizePath-canonical, so slugs
// the server sends in a decomposed Unicode form land on the same path
// as their precomposed spelling.
func RecordPath(rec remote.Record, defaultLang string) string {
	f := FormatFor(rec.ContentType)

	parts := make([]string, 0, 3)

	if rec.Language != "" && rec.Language != defaultLang {
		parts = append(parts, rec.Language)
	}

	if f.Folder != "" {
		parts = append(parts, f.Folder)
	}

	parts = append(parts, rec.Slug+"."+f.Ext)

	return NormalizePath(path.Join(parts...))
}

// CommentContainerPath locates the thread container a comment belongs
// to. All comments of one thread share a single JSON array file named
// after the thread slug.
func CommentContainerPath(threadSlug string) string {
	return NormalizePath(threadSlug + ".json")
}

// MediaPath locates a media asset inside a kind directory. Assets are
// grouped under the identifier of the record that owns them.
func MediaPath(scopeID, name string) string {
	return NormalizePath(path.Join("media", scopeID, name))
}
