package mirror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/alexjbarnes/content-mirror/internal/remote"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Layout selects how a record is serialized on disk.
type Layout int

const (
	// LayoutDocument is structured text with a YAML header: frontmatter
	// metadata between "---" delimiters followed by the body text.
	LayoutDocument Layout = iota

	// LayoutData is a single plain JSON object holding metadata and
	// body together.
	LayoutData
)

// Format describes how records of one content type map onto files: the
// extension, the serialization layout, and the type-named subfolder
// (empty for kinds whose directory already scopes the type).
type Format struct {
	Ext    string
	Layout Layout
	Folder string
}

// defaultFormats maps known content types to their on-disk format.
// Unknown types fall back to a document layout under a pluralized
// type folder, preserving forward compatibility with new remote types.
var defaultFormats = map[string]Format{
	"article":        {Ext: "md", Layout: LayoutDocument, Folder: "articles"},
	"page":           {Ext: "md", Layout: LayoutDocument, Folder: "pages"},
	"component":      {Ext: "json", Layout: LayoutData, Folder: "components"},
	"snippet":        {Ext: "json", Layout: LayoutData, Folder: "snippets"},
	"email-template": {Ext: "md", Layout: LayoutDocument, Folder: ""},
	"setting":        {Ext: "json", Layout: LayoutData, Folder: ""},
}

// FormatFor returns the on-disk format for a content type.
func FormatFor(contentType string) Format {
	if f, ok := defaultFormats[contentType]; ok {
		return f
	}

	return Format{Ext: "md", Layout: LayoutDocument, Folder: contentType + "s"}
}

// frontmatterDelim separates the YAML header from the body.
const frontmatterDelim = "---"

// Render serializes a record into file content according to its format.
// Rendering is deterministic: the same record always produces the same
// bytes, which the merge fast path relies on.
func Render(rec remote.Record, f Format) ([]byte, error) {
	if f.Layout == LayoutData {
		return renderData(rec)
	}

	return renderDocument(rec)
}

// renderDocument produces the header-plus-body layout. Well-known
// fields come first in a fixed order, then open attributes sorted by
// key, so renders are byte-stable.
func renderDocument(rec remote.Record) ([]byte, error) {
	header := &yaml.Node{Kind: yaml.MappingNode}

	if err := appendField(header, "id", rec.ID); err != nil {
		return nil, err
	}

	if err := appendField(header, "slug", rec.Slug); err != nil {
		return nil, err
	}

	if err := appendField(header, "type", rec.ContentType); err != nil {
		return nil, err
	}

	if rec.Language != "" {
		if err := appendField(header, "language", rec.Language); err != nil {
			return nil, err
		}
	}

	if !rec.UpdatedAt.IsZero() {
		if err := appendField(header, "updated_at", rec.UpdatedAt.UTC().Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		if err := appendField(header, k, rec.Attributes[k]); err != nil {
			return nil, err
		}
	}

	meta, err := yaml.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshalling frontmatter: %w", err)
	}

	var b bytes.Buffer

	b.WriteString(frontmatterDelim + "\n")
	b.Write(meta)
	b.WriteString(frontmatterDelim + "\n")
	b.WriteString(rec.Body)

	if rec.Body != "" && !strings.HasSuffix(rec.Body, "\n") {
		b.WriteString("\n")
	}

	return b.Bytes(), nil
}

func appendField(n *yaml.Node, key string, value any) error {
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}

	valueNode := &yaml.Node{}
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("encoding frontmatter field %s: %w", key, err)
	}

	n.Content = append(n.Content, keyNode, valueNode)

	return nil
}

// dataDocument is the plain-structured-data layout.
type dataDocument struct {
	ID         int64          `json:"id"`
	Slug       string         `json:"slug"`
	Type       string         `json:"type"`
	Language   string         `json:"language,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Body       string         `json:"body,omitempty"`
}

func renderData(rec remote.Record) ([]byte, error) {
	doc := dataDocument{
		ID:         rec.ID,
		Slug:       rec.Slug,
		Type:       rec.ContentType,
		Language:   rec.Language,
		UpdatedAt:  rec.UpdatedAt.UTC(),
		Attributes: rec.Attributes,
		Body:       rec.Body,
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling data document: %w", err)
	}

	return append(out, '\n'), nil
}

// CommentEntry is one comment inside a thread container file.
type CommentEntry struct {
	ID         int64          `json:"id"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Body       string         `json:"body"`
}

// NewCommentEntry converts a remote comment record into a container
// entry.
func NewCommentEntry(rec remote.Record) CommentEntry {
	return CommentEntry{
		ID:         rec.ID,
		UpdatedAt:  rec.UpdatedAt.UTC(),
		Attributes: rec.Attributes,
		Body:       rec.Body,
	}
}

// frontmatterIDPattern extracts the id field from a YAML header. The
// match is anchored to the start of the line and to a line boundary
// after the digits, so searching for id 10 can never match a file whose
// id is 100. Anchored scanning (rather than a full YAML parse) also
// keeps extraction working on files whose header was mangled by an
// unresolved merge conflict.
var frontmatterIDPattern = regexp.MustCompile(`(?m)^id:[ \t]*([0-9]+)[ \t]*\r?$`)

// ExtractID pulls the record identifier out of file content. Returns
// false for files with no recognizable identifier (for example local
// drafts that have not been pushed); such files are invisible to
// remote-driven reconciliation.
func ExtractID(data []byte, path string) (int64, bool) {
	switch strings.ToLower(ext(path)) {
	case "md", "markdown":
		return extractFrontmatterID(data)
	case "json":
		v := gjson.GetBytes(data, "id")
		if v.Type == gjson.Number {
			return v.Int(), true
		}

		return 0, false
	default:
		return 0, false
	}
}

func extractFrontmatterID(data []byte) (int64, bool) {
	block, ok := frontmatterBlock(data)
	if !ok {
		return 0, false
	}

	match := frontmatterIDPattern.FindSubmatch(block)
	if match == nil {
		return 0, false
	}

	var id int64
	if _, err := fmt.Sscanf(string(match[1]), "%d", &id); err != nil {
		return 0, false
	}

	return id, true
}

// frontmatterBlock returns the bytes between the opening and closing
// "---" delimiters, or false when the file has no header.
func frontmatterBlock(data []byte) ([]byte, bool) {
	if !bytes.HasPrefix(data, []byte(frontmatterDelim)) {
		return nil, false
	}

	rest := data[len(frontmatterDelim):]

	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		return nil, false
	}

	rest = rest[idx+1:]

	end := bytes.Index(rest, []byte("\n"+frontmatterDelim))
	if end < 0 {
		// Delimiter may open the buffer when the header starts at the
		// first byte after the opening line.
		if bytes.HasPrefix(rest, []byte(frontmatterDelim)) {
			return nil, true
		}

		return nil, false
	}

	return rest[:end+1], true
}

// ExtractContainerIDs returns every element id of a JSON array
// container (comment threads). Returns nil when the content is not an
// array.
func ExtractContainerIDs(data []byte) []int64 {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil
	}

	var ids []int64

	parsed.ForEach(func(_, value gjson.Result) bool {
		v := value.Get("id")
		if v.Type == gjson.Number {
			ids = append(ids, v.Int())
		}

		return true
	})

	return ids
}

func ext(path string) string {
	if dot := strings.LastIndex(path, "."); dot >= 0 && dot < len(path)-1 {
		return path[dot+1:]
	}

	return ""
}
