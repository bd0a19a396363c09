// Package reconcile drains the local intent queue against the remote store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/remote"
)

const defaultCallTimeout = 5 * time.Second

// IntentQueue is the slice of the queue API the reconciler needs.
type IntentQueue interface {
	Snapshot() ([]queue.Intent, error)
	RemoveIntent(target, id string) error
	RecordFailure(target, msg string) error
}

// Result reports the outcome of one drain pass. A drain never returns an
// error: retryable failures leave their intents queued for the next pass.
type Result struct {
	Applied  []string `json:"applied"`
	Failed   []string `json:"failed"`
	TimedOut bool     `json:"timed_out"`
}

// Reconciler applies queued intents to the remote store, in capture order,
// one at a time. It holds no state between drains.
type Reconciler struct {
	Store remote.Store
	// CallTimeout bounds each individual remote call, nested inside the
	// drain budget. <= 0 defaults to 5s.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Drain takes a snapshot of q and attempts to apply every intent within
// budget. A failing intent is recorded and skipped; it must not block the
// rest of the pass. Unprocessed intents are left exactly as they were.
func (r *Reconciler) Drain(ctx context.Context, q IntentQueue, budget time.Duration) Result {
	return r.drain(ctx, q, budget, "")
}

// DrainTarget is the capture surfaces' quick sync: one bounded attempt for a
// single target, leaving the rest of the queue for the next full drain.
func (r *Reconciler) DrainTarget(ctx context.Context, q IntentQueue, targetURL string, budget time.Duration) Result {
	return r.drain(ctx, q, budget, targetURL)
}

func (r *Reconciler) drain(ctx context.Context, q IntentQueue, budget time.Duration, only string) Result {
	var res Result
	log := r.logger()

	snapshot, err := q.Snapshot()
	if err != nil {
		log.Error("queue snapshot failed", "error", err)
		return res
	}

	drainCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for _, intent := range snapshot {
		if only != "" && intent.Target != only {
			continue
		}
		if drainCtx.Err() != nil {
			res.TimedOut = true
			break
		}

		if err := r.apply(drainCtx, intent); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && drainCtx.Err() != nil {
				// The budget ran out, not the single call; stop the pass.
				res.TimedOut = true
				break
			}
			res.Failed = append(res.Failed, intent.Target)
			if recErr := q.RecordFailure(intent.Target, err.Error()); recErr != nil {
				log.Error("recording failure", "target", intent.Target, "error", recErr)
			}
			log.Warn("intent not applied", "target", intent.Target, "error", err)
			continue
		}

		// Consume by identity, not by target: a capture that replaced this
		// entry mid-drain must survive for the next pass. A failed removal
		// only means the intent will be re-applied idempotently.
		if err := q.RemoveIntent(intent.Target, intent.ID); err != nil {
			log.Error("removing applied intent", "target", intent.Target, "error", err)
		}
		res.Applied = append(res.Applied, intent.Target)
	}
	return res
}

// apply performs the upsert for one intent, falling back to a status-only
// update when the merge path is unavailable. It never reads the remote row:
// the client holds no authoritative copy of remote-enriched fields.
func (r *Reconciler) apply(ctx context.Context, intent queue.Intent) error {
	callTimeout := r.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	outcome, err := r.Store.Upsert(callCtx, remote.NewLink{
		Target: intent.Target,
		Status: intent.Desired,
		Origin: intent.Origin,
	})
	if err != nil {
		return err
	}
	if outcome == remote.UpsertApplied {
		return nil
	}

	updCtx, cancelUpd := context.WithTimeout(ctx, callTimeout)
	defer cancelUpd()

	upd, err := r.Store.UpdateStatus(updCtx, intent.Target, intent.Desired)
	if err != nil {
		return err
	}
	if upd == remote.UpdateNotFound {
		// The row vanished between the conflict and the patch; re-upserting
		// next pass will recreate it.
		return fmt.Errorf("%w: row gone after conflict", remote.ErrUnavailable)
	}
	return nil
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
