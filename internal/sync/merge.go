package sync

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Conflict markers written into merged output when local and remote
// edits touch the same region.
const (
	conflictMarkerLocal  = "<<<<<<< local\n"
	conflictMarkerSplit  = "=======\n"
	conflictMarkerRemote = ">>>>>>> remote\n"
)

// MergeResult is the outcome of reconciling a locally edited file with
// a remote update against their common base version.
type MergeResult struct {
	// Merged is the combined text, including conflict markers when the
	// merge was not clean.
	Merged string

	// Clean reports whether every edit combined without conflict.
	Clean bool

	// Conflicts counts the conflicted regions embedded in Merged.
	Conflicts int
}

// Merge performs a three-way line merge of local and remote against
// base. Non-overlapping edits from both sides are combined; overlapping
// edits produce a conflict region with both versions preserved between
// markers. Documents with a frontmatter header are merged per section,
// so a metadata edit never conflicts with a body edit.
func Merge(base, local, remote string) MergeResult {
	if local == remote {
		return MergeResult{Merged: remote, Clean: true}
	}

	bh, bb, okB := splitDocument(base)
	lh, lb, okL := splitDocument(local)
	rh, rb, okR := splitDocument(remote)

	if okB && okL && okR {
		header, headerConflicts := merge3(bh, lh, rh)
		body, bodyConflicts := merge3(bb, lb, rb)

		conflicts := headerConflicts + bodyConflicts

		return MergeResult{
			Merged:    header + body,
			Clean:     conflicts == 0,
			Conflicts: conflicts,
		}
	}

	merged, conflicts := merge3(base, local, remote)

	return MergeResult{Merged: merged, Clean: conflicts == 0, Conflicts: conflicts}
}

// splitDocument divides structured text into its frontmatter header
// (delimiters included) and body. Returns false when the text has no
// complete header.
func splitDocument(text string) (header, body string, ok bool) {
	const delim = "---\n"

	if !strings.HasPrefix(text, delim) {
		return "", "", false
	}

	rest := text[len(delim):]

	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		if strings.HasSuffix(rest, "\n---") {
			return text, "", true
		}

		return "", "", false
	}

	headerEnd := len(delim) + idx + 1 + len(delim)

	return text[:headerEnd], text[headerEnd:], true
}

// hunk is one edit against the base text: the half-open base line range
// [start, end) it replaces and the lines that replace it. A pure
// insertion has start == end.
type hunk struct {
	start, end int
	lines      []string
}

// merge3 runs the line-level three-way merge and returns the merged
// text with the number of conflict regions emitted.
func merge3(base, local, remote string) (string, int) {
	baseLines := splitLines(base)
	localHunks := editHunks(base, local)
	remoteHunks := editHunks(base, remote)

	regions := coalesce(localHunks, remoteHunks)

	var (
		out       strings.Builder
		pos       int
		conflicts int
	)

	for _, reg := range regions {
		for _, line := range baseLines[pos:reg.start] {
			out.WriteString(line)
		}

		pos = reg.end

		switch {
		case len(reg.local) == 0:
			out.WriteString(applyHunks(baseLines, reg.start, reg.end, reg.remote))
		case len(reg.remote) == 0:
			out.WriteString(applyHunks(baseLines, reg.start, reg.end, reg.local))
		default:
			localText := applyHunks(baseLines, reg.start, reg.end, reg.local)
			remoteText := applyHunks(baseLines, reg.start, reg.end, reg.remote)

			if localText == remoteText {
				out.WriteString(localText)

				continue
			}

			conflicts++

			out.WriteString(conflictMarkerLocal)
			out.WriteString(ensureNewline(localText))
			out.WriteString(conflictMarkerSplit)
			out.WriteString(ensureNewline(remoteText))
			out.WriteString(conflictMarkerRemote)
		}
	}

	for _, line := range baseLines[pos:] {
		out.WriteString(line)
	}

	return out.String(), conflicts
}

// region is a maximal run of overlapping hunks, split by originating
// side.
type region struct {
	start, end    int
	local, remote []hunk
}

// coalesce groups the two hunk streams into regions. Hunks whose base
// ranges overlap end up in one region, as do two pure insertions at the
// same point, since there is no base line to order them by.
func coalesce(local, remote []hunk) []region {
	type sided struct {
		hunk
		fromLocal bool
	}

	all := make([]sided, 0, len(local)+len(remote))

	for _, h := range local {
		all = append(all, sided{hunk: h, fromLocal: true})
	}

	for _, h := range remote {
		all = append(all, sided{hunk: h, fromLocal: false})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}

		return all[i].end < all[j].end
	})

	var regions []region

	for _, s := range all {
		if len(regions) > 0 {
			last := &regions[len(regions)-1]
			if overlaps(last.start, last.end, s.start, s.end) {
				if s.end > last.end {
					last.end = s.end
				}

				if s.fromLocal {
					last.local = append(last.local, s.hunk)
				} else {
					last.remote = append(last.remote, s.hunk)
				}

				continue
			}
		}

		reg := region{start: s.start, end: s.end}

		if s.fromLocal {
			reg.local = []hunk{s.hunk}
		} else {
			reg.remote = []hunk{s.hunk}
		}

		regions = append(regions, reg)
	}

	return regions
}

func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	if aStart == aEnd && bStart == bEnd {
		return aStart == bStart
	}

	return aStart < bEnd && bStart < aEnd
}

// applyHunks rewrites the base slice [start, end) with the given edits.
// The hunks must be non-overlapping, sorted, and contained in the
// slice.
func applyHunks(baseLines []string, start, end int, hunks []hunk) string {
	var out strings.Builder

	pos := start

	for _, h := range hunks {
		for _, line := range baseLines[pos:h.start] {
			out.WriteString(line)
		}

		for _, line := range h.lines {
			out.WriteString(line)
		}

		pos = h.end
	}

	for _, line := range baseLines[pos:end] {
		out.WriteString(line)
	}

	return out.String()
}

// editHunks diffs other against base at line granularity and folds the
// diff into hunks. Adjacent deletions and insertions collapse into a
// single replacement hunk.
func editHunks(base, other string) []hunk {
	diffs := lineDiffs(base, other)

	var (
		hunks []hunk
		cur   *hunk
		pos   int
	)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += lineCount(d.Text)
			cur = nil
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				hunks = append(hunks, hunk{start: pos, end: pos})
				cur = &hunks[len(hunks)-1]
			}

			n := lineCount(d.Text)
			cur.end += n
			pos += n
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				hunks = append(hunks, hunk{start: pos, end: pos})
				cur = &hunks[len(hunks)-1]
			}

			cur.lines = append(cur.lines, splitLines(d.Text)...)
		}
	}

	return hunks
}

// lineDiffs produces a line-mode diff between two texts.
func lineDiffs(a, b string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()

	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)

	return dmp.DiffCharsToLines(diffs, lines)
}

// splitLines splits text into lines keeping the trailing newline on
// each, so joining the slices reproduces the input exactly.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func lineCount(text string) int {
	return len(splitLines(text))
}

func ensureNewline(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}

	return text + "\n"
}
