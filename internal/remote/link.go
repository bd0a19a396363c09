package remote

import "time"

// Status is the read state of a link as stored remotely.
type Status string

const (
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

// Valid reports whether s is one of the two known statuses.
func (s Status) Valid() bool {
	return s == StatusUnread || s == StatusRead
}

// Link is one row of the remote links collection. The client only ever
// writes RawURL, Status, List and DeviceSaved; the remaining fields are
// maintained by the remote store and its enrichment triggers.
type Link struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	RawURL      string    `json:"raw_url"`
	ResolvedURL string    `json:"resolved_url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	List        string    `json:"list"`
	Status      Status    `json:"status"`
	DeviceSaved string    `json:"device_saved,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewLink carries the client-owned fields of an upsert. Title, description
// and resolved URL are deliberately absent: the client holds no
// authoritative copy of them and must never write them back.
type NewLink struct {
	Target string
	Status Status
	Origin string
}

// Cursor is the exclusive lower bound of a page under the
// (updated_at DESC, id DESC) total order. The id tie-break keeps the order
// strict when two rows share an updated_at value.
type Cursor struct {
	UpdatedAt time.Time `json:"u"`
	ID        string    `json:"id"`
}

// Query selects a slice of the remote collection.
type Query struct {
	Status Status  // empty means all statuses
	Cursor *Cursor // nil means from the top
	Limit  int
}
