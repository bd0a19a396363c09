package queue

import (
	"errors"
	"time"

	"github.com/avelis/readthis/internal/remote"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Intent is one user action awaiting remote application. The queue holds at
// most one Intent per target; a newer action on the same target replaces the
// older one and takes its place at the tail.
type Intent struct {
	ID         string
	Target     string
	Desired    remote.Status
	CapturedAt time.Time
	Origin     string // capture surface that produced it, diagnostics only
	LastError  string // most recent drain failure, diagnostics only
}
