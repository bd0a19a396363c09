package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultList        = "read"
	linksPath          = "/rest/v1/links"
)

// Client talks to a PostgREST-style remote over the links table. It is
// stateless; every call carries its own timeout so an unreachable network
// path fails fast instead of stalling a whole drain.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	userID     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a remote client. callTimeout <= 0 defaults to 5s.
func NewClient(baseURL, apiKey, token, userID string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		token:      token,
		userID:     userID,
		httpClient: &http.Client{Timeout: callTimeout},
		now:        time.Now,
	}
}

// Upsert creates or merges the row keyed by (user_id, raw_url) in a single
// idempotent call. It never sends title, description or resolved_url; those
// belong to the remote enrichment triggers.
func (c *Client) Upsert(ctx context.Context, link NewLink) (UpsertOutcome, error) {
	if err := c.checkToken(); err != nil {
		return 0, err
	}

	row := map[string]any{
		"user_id":      c.userID,
		"raw_url":      link.Target,
		"status":       link.Status,
		"list":         defaultList,
		"device_saved": link.Origin,
	}
	body, err := json.Marshal([]map[string]any{row})
	if err != nil {
		return 0, fmt.Errorf("marshaling upsert row: %w", err)
	}

	u := c.baseURL + linksPath + "?on_conflict=" + url.QueryEscape("user_id,raw_url")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return UpsertApplied, nil
	case resp.StatusCode == http.StatusConflict:
		return UpsertConflict, nil
	default:
		return 0, statusError(resp)
	}
}

// UpdateStatus patches only the status column of the row scoped by
// (user_id, raw_url). Used as the fallback when an upsert reports a conflict.
func (c *Client) UpdateStatus(ctx context.Context, target string, status Status) (UpdateOutcome, error) {
	if err := c.checkToken(); err != nil {
		return 0, err
	}

	body, err := json.Marshal(map[string]any{"status": status})
	if err != nil {
		return 0, fmt.Errorf("marshaling status patch: %w", err)
	}

	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("raw_url", "eq."+target)
	u := c.baseURL + linksPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, statusError(resp)
	}

	var rows []Link
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("decoding patch response: %w", err)
	}
	if len(rows) == 0 {
		return UpdateNotFound, nil
	}
	return UpdateApplied, nil
}

// Query selects rows ordered by (updated_at DESC, id DESC), strictly below
// the cursor when one is given. Keyset filtering, never offsets, so rows
// moved by concurrent updates cannot repeat or be skipped within a scan.
func (c *Client) Query(ctx context.Context, query Query) ([]Link, error) {
	if err := c.checkToken(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("order", "updated_at.desc,id.desc")
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Status != "" {
		q.Set("status", "eq."+string(query.Status))
	}
	if cur := query.Cursor; cur != nil {
		ts := cur.UpdatedAt.UTC().Format(time.RFC3339Nano)
		q.Set("or", fmt.Sprintf("(updated_at.lt.%s,and(updated_at.eq.%s,id.lt.%s))", ts, ts, cur.ID))
	}
	u := c.baseURL + linksPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var rows []Link
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}
	return rows, nil
}

func (c *Client) checkToken() error {
	expired, err := TokenExpired(c.token, c.now())
	if err != nil {
		// Opaque tokens are passed through; the remote decides.
		return nil
	}
	if expired {
		return fmt.Errorf("%w: bearer token expired", ErrRejected)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}

// statusError maps an HTTP status to the error taxonomy. Timeouts, 429 and
// 5xx are retryable; auth and validation failures are not.
func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, snippet)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, snippet)
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
