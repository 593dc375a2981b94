package remote

import "time"

// Kind identifies an entity kind in the content store. Each kind owns a
// disjoint cursor and a disjoint mirror subtree, so kinds can be synced
// concurrently with respect to each other.
type Kind string

const (
	KindContent       Kind = "content"
	KindEmailTemplate Kind = "email-template"
	KindComment       Kind = "comment"
	KindSetting       Kind = "setting"
)

// Valid returns true if the kind is recognized.
func (k Kind) Valid() bool {
	switch k {
	case KindContent, KindEmailTemplate, KindComment, KindSetting:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// APIPath returns the path segment used in changes requests for the kind.
func (k Kind) APIPath() string {
	switch k {
	case KindEmailTemplate:
		return "email-templates"
	case KindComment:
		return "comments"
	case KindSetting:
		return "settings"
	default:
		return "content"
	}
}

// DirName returns the mirror subtree name for the kind.
func (k Kind) DirName() string {
	return k.APIPath()
}

// AllKinds returns every supported entity kind.
func AllKinds() []Kind {
	return []Kind{KindContent, KindEmailTemplate, KindComment, KindSetting}
}

// Record is a single entity as delivered by the changes endpoint.
// Identity is ID; Slug, ContentType, and Language are mutable and
// jointly determine the on-disk path. Fields the mirror does not model
// explicitly ride along in Attributes and are carried through rendering
// unchanged.
type Record struct {
	ID          int64          `json:"id"`
	Kind        Kind           `json:"kind"`
	Slug        string         `json:"slug"`
	ContentType string         `json:"content_type"`
	Language    string         `json:"language"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Body        string         `json:"body"`
	Attributes  map[string]any `json:"attributes,omitempty"`

	// Previous is the record as last observed by this client, supplied
	// when the server can determine the client's prior view. It is the
	// merge ancestor; when absent the local snapshot store is consulted.
	Previous *Record `json:"previous,omitempty"`
}

// Deletion signals that a record no longer exists remotely.
type Deletion struct {
	ID int64 `json:"id"`
}

// MediaDeletion signals removal of a media file, identified by location
// rather than numeric id.
type MediaDeletion struct {
	ScopeID string `json:"scope_id"`
	Name    string `json:"name"`
}

// changePage is the payload of a single changes response. The next
// cursor is carried in a response header, never in this body.
type changePage struct {
	Items        []Record        `json:"items"`
	Deleted      []Deletion      `json:"deleted"`
	DeletedMedia []MediaDeletion `json:"deleted_media"`
}

// ChangeSet accumulates items and deletions across every page of one
// fetch loop. Duplicate ids across pages are not de-duplicated here; the
// reconciler's index lookup makes duplicate processing safe (last write
// wins).
type ChangeSet struct {
	Items        []Record
	Deleted      []Deletion
	DeletedMedia []MediaDeletion
}

// Empty reports whether the change set carries no work.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Items) == 0 && len(cs.Deleted) == 0 && len(cs.DeletedMedia) == 0
}

// APIError represents an error response body from the content store.
type APIError struct {
	Error string `json:"error"`
}
