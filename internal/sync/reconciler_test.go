package sync

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/content-mirror/internal/mirror"
	"github.com/alexjbarnes/content-mirror/internal/remote"
	"github.com/alexjbarnes/content-mirror/internal/state"
)

type fixture struct {
	mirror *mirror.Mirror
	snaps  *state.Store
	kind   remote.Kind
}

func newFixture(t *testing.T, kind remote.Kind) *fixture {
	t.Helper()

	dir := t.TempDir()

	m, err := mirror.New(filepath.Join(dir, kind.DirName()))
	require.NoError(t, err)

	snaps, err := state.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { snaps.Close() })

	return &fixture{mirror: m, snaps: snaps, kind: kind}
}

// apply rebuilds the identifier index and runs one reconciliation pass,
// the way the sync loop drives it.
func (f *fixture) apply(t *testing.T, cs *remote.ChangeSet, force bool) Summary {
	t.Helper()

	idx, err := mirror.BuildIndex(f.mirror)
	require.NoError(t, err)

	r := NewReconciler(f.mirror, idx, f.snaps, f.kind, "en", force, slog.Default())

	return r.Apply(cs)
}

func article(id int64, slug, body string) remote.Record {
	return remote.Record{
		ID:          id,
		Kind:        remote.KindContent,
		Slug:        slug,
		ContentType: "article",
		Language:    "en",
		UpdatedAt:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Body:        body,
	}
}

func comment(id int64, thread, body string) remote.Record {
	return remote.Record{
		ID:          id,
		Kind:        remote.KindComment,
		Slug:        thread,
		ContentType: "comment",
		UpdatedAt:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Body:        body,
	}
}

// --- create and update ---

func TestApply_CreatesNewRecord(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	sum := f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "hello", "first version\n")}}, false)

	assert.Equal(t, 1, sum.Applied)
	assert.Zero(t, sum.Skipped)

	data, err := f.mirror.ReadFile("articles/hello.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: 1\n")
	assert.Contains(t, string(data), "first version\n")

	base, err := f.snaps.Base(remote.KindContent, 1)
	require.NoError(t, err)
	assert.Equal(t, data, base, "snapshot records what was written")
}

func TestApply_UpdatesUneditedFile(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "hello", "v1\n")}}, false)
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "hello", "v2\n")}}, false)

	data, err := f.mirror.ReadFile("articles/hello.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "v2\n")
	assert.NotContains(t, string(data), "v1\n")
}

func TestApply_Idempotent(t *testing.T) {
	f := newFixture(t, remote.KindContent)
	cs := &remote.ChangeSet{Items: []remote.Record{article(1, "hello", "same\n")}}

	f.apply(t, cs, false)
	first, err := f.mirror.ReadFile("articles/hello.md")
	require.NoError(t, err)

	sum := f.apply(t, cs, false)
	assert.Zero(t, sum.Conflicts)

	again, err := f.mirror.ReadFile("articles/hello.md")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

// --- path moves ---

func TestApply_SlugRenameMovesFile(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "old-name", "body\n")}}, false)
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "new-name", "body\n")}}, false)

	_, err := f.mirror.ReadFile("articles/old-name.md")
	require.Error(t, err, "old path must be removed")

	data, err := f.mirror.ReadFile("articles/new-name.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "slug: new-name\n")
}

func TestApply_TypeChangeMovesFolder(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "about", "body\n")}}, false)

	rec := article(1, "about", "body\n")
	rec.ContentType = "page"
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{rec}}, false)

	_, err := f.mirror.ReadFile("articles/about.md")
	require.Error(t, err)

	_, err = f.mirror.ReadFile("pages/about.md")
	require.NoError(t, err)
}

func TestApply_FormatChangeReplacesFile(t *testing.T) {
	// Same id and slug resynced with a data type: the markdown document
	// must be replaced by a single JSON file.
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "hero", "body\n")}}, false)

	rec := article(1, "hero", "body\n")
	rec.ContentType = "component"
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{rec}}, false)

	_, err := f.mirror.ReadFile("articles/hero.md")
	require.Error(t, err, "markdown document must be removed")

	data, err := f.mirror.ReadFile("components/hero.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": 1`)

	idx, err := mirror.BuildIndex(f.mirror)
	require.NoError(t, err)
	assert.Equal(t, []string{"components/hero.json"}, idx.Lookup(1))
}

func TestApply_LanguageChangeMovesFile(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "hello", "body\n")}}, false)

	rec := article(1, "hello", "body\n")
	rec.Language = "fr"
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{rec}}, false)

	_, err := f.mirror.ReadFile("articles/hello.md")
	require.Error(t, err)

	_, err = f.mirror.ReadFile("fr/articles/hello.md")
	require.NoError(t, err)
}

func TestApply_RenamePreservesLocalEdits(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "old", "line one\nline two\n")}}, false)

	// Local edit at the old path, then a rename arrives with the same
	// remote body.
	old, err := f.mirror.ReadFile("articles/old.md")
	require.NoError(t, err)
	edited := strings.Replace(string(old), "line two\n", "line two edited\n", 1)
	require.NoError(t, f.mirror.WriteFile("articles/old.md", []byte(edited)))

	rec := article(1, "renamed", "line one\nline two\n")
	rec.Previous = ptr(article(1, "old", "line one\nline two\n"))
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{rec}}, false)

	data, err := f.mirror.ReadFile("articles/renamed.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "line two edited\n")
}

func ptr(r remote.Record) *remote.Record { return &r }

// --- merging ---

func TestApply_MergesLocalAndRemoteEdits(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "alpha\nbravo\ncharlie\n")}}, false)

	// Local edit to the last line.
	data, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	edited := strings.Replace(string(data), "charlie\n", "charlie edited\n", 1)
	require.NoError(t, f.mirror.WriteFile("articles/doc.md", []byte(edited)))

	// Remote edit to the first line.
	sum := f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "alpha updated\nbravo\ncharlie\n")}}, false)
	assert.Zero(t, sum.Conflicts)

	merged, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	assert.Contains(t, string(merged), "alpha updated\n")
	assert.Contains(t, string(merged), "charlie edited\n")
}

func TestApply_ConflictingEditsMarked(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "shared line\n")}}, false)

	data, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	edited := strings.Replace(string(data), "shared line\n", "local version\n", 1)
	require.NoError(t, f.mirror.WriteFile("articles/doc.md", []byte(edited)))

	sum := f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "remote version\n")}}, false)
	assert.Equal(t, 1, sum.Conflicts)

	merged, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	assert.Contains(t, string(merged), "<<<<<<< local")
	assert.Contains(t, string(merged), "local version\n")
	assert.Contains(t, string(merged), "remote version\n")
	assert.Contains(t, string(merged), ">>>>>>> remote")
}

func TestApply_ForceOverwriteDiscardsLocalEdits(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "original\n")}}, false)
	require.NoError(t, f.mirror.WriteFile("articles/doc.md", []byte("completely replaced by hand\n")))

	sum := f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "remote wins\n")}}, true)
	assert.Zero(t, sum.Conflicts)

	data, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "remote wins\n")
	assert.NotContains(t, string(data), "by hand")
}

func TestApply_ServerSuppliedBaseWins(t *testing.T) {
	// Snapshot store is empty (fresh db), but the server supplies the
	// previous version; local edits still merge cleanly.
	f := newFixture(t, remote.KindContent)

	prev := article(1, "doc", "one\ntwo\n")
	rendered, err := mirror.Render(prev, mirror.FormatFor("article"))
	require.NoError(t, err)

	edited := strings.Replace(string(rendered), "two\n", "two edited\n", 1)
	require.NoError(t, f.mirror.WriteFile("articles/doc.md", []byte(edited)))

	rec := article(1, "doc", "one updated\ntwo\n")
	rec.Previous = ptr(prev)

	sum := f.apply(t, &remote.ChangeSet{Items: []remote.Record{rec}}, false)
	assert.Zero(t, sum.Conflicts)

	data, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "one updated\n")
	assert.Contains(t, string(data), "two edited\n")
}

func TestApply_NoAncestorOverwritesLocalFile(t *testing.T) {
	// A local file exists for the id, but there is no snapshot and the
	// server sends no previous version. With nothing to diff against
	// the remote content is written as-is, without conflict markers.
	f := newFixture(t, remote.KindContent)

	local := "---\nid: 1\nslug: doc\ntype: article\n---\nmy local draft\n"
	require.NoError(t, f.mirror.WriteFile("articles/doc.md", []byte(local)))

	sum := f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "doc", "remote body\n")}}, false)
	assert.Zero(t, sum.Conflicts)

	data, err := f.mirror.ReadFile("articles/doc.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "remote body\n")
	assert.NotContains(t, string(data), "my local draft")
	assert.NotContains(t, string(data), "<<<<<<<")
}

// --- deletions ---

func TestApply_DeletionRemovesFileAndSnapshot(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{article(1, "gone", "body\n")}}, false)

	sum := f.apply(t, &remote.ChangeSet{Deleted: []remote.Deletion{{ID: 1}}}, false)
	assert.Equal(t, 1, sum.Deleted)

	_, err := f.mirror.ReadFile("articles/gone.md")
	require.Error(t, err)

	base, err := f.snaps.Base(remote.KindContent, 1)
	require.NoError(t, err)
	assert.Nil(t, base)
}

func TestApply_DeletionOfUnknownIDIsNoop(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	sum := f.apply(t, &remote.ChangeSet{Deleted: []remote.Deletion{{ID: 404}}}, false)
	assert.Zero(t, sum.Deleted)
	assert.Zero(t, sum.Skipped)
}

func TestApply_DeleteAfterCreateInSameBatch(t *testing.T) {
	// A record created and deleted in one batch must end up absent.
	f := newFixture(t, remote.KindContent)

	cs := &remote.ChangeSet{
		Items:   []remote.Record{article(5, "ephemeral", "body\n")},
		Deleted: []remote.Deletion{{ID: 5}},
	}

	f.apply(t, cs, false)

	_, err := f.mirror.ReadFile("articles/ephemeral.md")
	require.Error(t, err)
}

func TestApply_MediaDeletion(t *testing.T) {
	f := newFixture(t, remote.KindContent)

	require.NoError(t, f.mirror.WriteFile("media/7/cover.png", []byte{0x89}))

	sum := f.apply(t, &remote.ChangeSet{
		DeletedMedia: []remote.MediaDeletion{{ScopeID: "7", Name: "cover.png"}},
	}, false)
	assert.Equal(t, 1, sum.Deleted)

	_, err := f.mirror.ReadFile("media/7/cover.png")
	require.Error(t, err)
}

// --- comments ---

func TestApply_CommentCreatesContainer(t *testing.T) {
	f := newFixture(t, remote.KindComment)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{comment(1, "getting-started", "nice post\n")}}, false)

	data, err := f.mirror.ReadFile("getting-started.json")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, mirror.ExtractContainerIDs(data))
}

func TestApply_CommentsShareContainer(t *testing.T) {
	f := newFixture(t, remote.KindComment)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{
		comment(1, "getting-started", "first\n"),
		comment(2, "getting-started", "second\n"),
	}}, false)

	data, err := f.mirror.ReadFile("getting-started.json")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, mirror.ExtractContainerIDs(data))
}

func TestApply_CommentUpdateReplacesEntry(t *testing.T) {
	f := newFixture(t, remote.KindComment)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{comment(1, "thread", "original\n")}}, false)
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{comment(1, "thread", "edited\n")}}, false)

	data, err := f.mirror.ReadFile("thread.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "edited")
	assert.NotContains(t, string(data), "original")
	assert.Equal(t, []int64{1}, mirror.ExtractContainerIDs(data))
}

func TestApply_CommentDeletionKeepsOthers(t *testing.T) {
	f := newFixture(t, remote.KindComment)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{
		comment(1, "thread", "first\n"),
		comment(2, "thread", "second\n"),
	}}, false)

	sum := f.apply(t, &remote.ChangeSet{Deleted: []remote.Deletion{{ID: 1}}}, false)
	assert.Equal(t, 1, sum.Deleted)

	data, err := f.mirror.ReadFile("thread.json")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, mirror.ExtractContainerIDs(data))
}

func TestApply_LastCommentDeletionRemovesContainer(t *testing.T) {
	f := newFixture(t, remote.KindComment)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{comment(1, "thread", "only\n")}}, false)
	f.apply(t, &remote.ChangeSet{Deleted: []remote.Deletion{{ID: 1}}}, false)

	_, err := f.mirror.ReadFile("thread.json")
	require.Error(t, err, "emptied container must be deleted")
}

func TestApply_CommentMovesBetweenThreads(t *testing.T) {
	f := newFixture(t, remote.KindComment)

	f.apply(t, &remote.ChangeSet{Items: []remote.Record{comment(1, "old-thread", "hello\n")}}, false)
	f.apply(t, &remote.ChangeSet{Items: []remote.Record{comment(1, "new-thread", "hello\n")}}, false)

	_, err := f.mirror.ReadFile("old-thread.json")
	require.Error(t, err, "emptied source container must be deleted")

	data, err := f.mirror.ReadFile("new-thread.json")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, mirror.ExtractContainerIDs(data))
}
