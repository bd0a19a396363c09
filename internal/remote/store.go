package remote

import (
	"context"
	"errors"
)

// ErrUnavailable covers timeouts, transport failures and 5xx responses.
// Intents that fail with it stay queued and are retried on the next drain.
var ErrUnavailable = errors.New("remote unavailable")

// ErrRejected covers auth failures and other non-retryable 4xx responses.
var ErrRejected = errors.New("remote rejected request")

// UpsertOutcome is the result of a create-or-merge write.
type UpsertOutcome int

const (
	// UpsertApplied means the row was created or merged with the desired state.
	UpsertApplied UpsertOutcome = iota
	// UpsertConflict means the row exists but the merge path was unavailable;
	// the caller should fall back to a scoped status update.
	UpsertConflict
)

// UpdateOutcome is the result of a scoped status update.
type UpdateOutcome int

const (
	UpdateApplied UpdateOutcome = iota
	UpdateNotFound
)

// Store is the remote links collection as seen by the reconciler and pager.
// Implementations must make Upsert idempotent: applying the same NewLink
// twice yields the same final row as applying it once.
type Store interface {
	Upsert(ctx context.Context, link NewLink) (UpsertOutcome, error)
	UpdateStatus(ctx context.Context, target string, status Status) (UpdateOutcome, error)
	Query(ctx context.Context, q Query) ([]Link, error)
}
