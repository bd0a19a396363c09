// Package api is the daemon's loopback HTTP surface. Capture endpoints go
// through the intent queue exactly like the CLI surfaces: enqueue first,
// answer immediately, sync in the background of the same request budget.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/avelis/readthis/internal/notify"
	"github.com/avelis/readthis/internal/page"
	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/reconcile"
	"github.com/avelis/readthis/internal/remote"
	"github.com/avelis/readthis/internal/target"
)

const (
	maxBodySize = 1 << 20 // 1MB

	// quickSyncBudget bounds the inline drain after a capture so the
	// request returns well under a second even when the remote is slow.
	quickSyncBudget = 800 * time.Millisecond

	// ScopeLinks is the notify scope for changes to the links collection.
	ScopeLinks = "links"
)

// Deps holds everything the handlers need.
type Deps struct {
	Queue      *queue.Queue
	Reconciler *reconcile.Reconciler
	Pager      *page.Pager
	Notifier   *notify.Notifier
	Token      string
	FullBudget time.Duration // budget for POST /sync drains
	Logger     *slog.Logger
}

// NewHandler builds the daemon router.
func NewHandler(deps Deps) http.Handler {
	v := validator.New()

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/links", handleCapture(deps, v, remote.StatusUnread))
		r.Patch("/links", handleCapture(deps, v, ""))
		r.Get("/links", handleList(deps))
		r.Post("/sync", handleSync(deps))
		r.Post("/notify", handleNotify(deps))
		r.Get("/ws", handleWS(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CaptureRequest is the body of POST and PATCH /links.
type CaptureRequest struct {
	URL    string `json:"url" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=unread read"`
}

// CaptureResponse reports what happened to a captured intent. Queued is
// always true on success; Applied tells whether the quick sync landed it
// remotely before the response was written.
type CaptureResponse struct {
	Target  string `json:"target"`
	Status  string `json:"status"`
	Queued  bool   `json:"queued"`
	Applied bool   `json:"applied"`
}

// handleCapture records an intent and kicks a bounded single-target drain.
// defaultStatus applies when the body omits one; the PATCH route passes none
// and requires it.
func handleCapture(deps Deps, v *validator.Validate, defaultStatus remote.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req CaptureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := v.Struct(req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
			return
		}

		desired := remote.Status(req.Status)
		if desired == "" {
			desired = defaultStatus
		}
		if !desired.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status is required")
			return
		}

		targetURL, ok := target.Normalize(req.URL)
		if !ok {
			httpError(w, http.StatusUnprocessableEntity, "invalid_target_error", "not an http(s) URL: %q", req.URL)
			return
		}

		if _, err := deps.Queue.Enqueue(targetURL, desired, "daemon"); err != nil {
			httpError(w, http.StatusInternalServerError, "queue_error", "recording intent: %v", err)
			return
		}

		res := deps.Reconciler.DrainTarget(r.Context(), deps.Queue, targetURL, quickSyncBudget)
		deps.Notifier.Signal(ScopeLinks)

		writeJSON(w, http.StatusAccepted, CaptureResponse{
			Target:  targetURL,
			Status:  string(desired),
			Queued:  true,
			Applied: len(res.Applied) == 1,
		})
	}
}

func handleList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := remote.Status(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", status)
			return
		}

		pager := *deps.Pager
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			pager.Limit = n
		}

		pg, err := pager.Fetch(r.Context(), status, r.URL.Query().Get("cursor"))
		if err != nil {
			status, errType := remoteErrorStatus(err)
			httpError(w, status, errType, "fetching page: %v", err)
			return
		}
		if pg.Links == nil {
			pg.Links = []remote.Link{}
		}
		writeJSON(w, http.StatusOK, pg)
	}
}

func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := deps.Reconciler.Drain(r.Context(), deps.Queue, deps.FullBudget)
		if len(res.Applied) > 0 {
			deps.Notifier.Signal(ScopeLinks)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// NotifyRequest is the body of POST /notify.
type NotifyRequest struct {
	Scope string `json:"scope"`
}

// handleNotify lets another local process (a capture surface that just
// enqueued) prompt this one to re-sync soon. Best effort by contract.
func handleNotify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req NotifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		scope := req.Scope
		if scope == "" {
			scope = ScopeLinks
		}
		deps.Notifier.Signal(scope)
		w.WriteHeader(http.StatusAccepted)
	}
}

func remoteErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, remote.ErrRejected):
		return http.StatusBadGateway, "remote_rejected_error"
	case errors.Is(err, remote.ErrUnavailable):
		return http.StatusServiceUnavailable, "remote_unavailable_error"
	default:
		return http.StatusBadRequest, "invalid_request_error"
	}
}
