// Package page reads the remote collection in stable, non-overlapping
// slices using a compound keyset cursor.
package page

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/avelis/readthis/internal/remote"
)

const defaultLimit = 25

// Page is one slice of the collection. Next is the opaque cursor for the
// following page; empty means end of collection.
type Page struct {
	Links []remote.Link `json:"links"`
	Next  string        `json:"next_cursor,omitempty"`
}

// Pager fetches pages ordered by (updated_at DESC, id DESC). Each fetch is a
// single call with no internal retry; retry policy belongs to the caller.
type Pager struct {
	Store remote.Store
	Limit int
}

// Fetch returns the page strictly below cursor, or the top of the collection
// when cursor is empty. Safe to restart from an empty cursor at any time; no
// server-side session state is involved.
func (p *Pager) Fetch(ctx context.Context, status remote.Status, cursor string) (Page, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	q := remote.Query{Status: status, Limit: limit}
	var bound *remote.Cursor
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		bound = &c
		q.Cursor = bound
	}

	rows, err := p.Store.Query(ctx, q)
	if err != nil {
		return Page{}, err
	}

	// Gap guard: a row whose updated_at moved while we were between pages can
	// come back at or above the cursor, or out of order. Such rows have
	// already been seen (or will be, on the next fresh fetch from the top);
	// dropping them keeps pages non-overlapping.
	kept := rows[:0]
	prev := bound
	for _, row := range rows {
		if prev != nil && !below(row, *prev) {
			continue
		}
		kept = append(kept, row)
		prev = &remote.Cursor{UpdatedAt: row.UpdatedAt, ID: row.ID}
	}

	pageOut := Page{Links: kept}
	// The next cursor always comes from a kept row so it can never move back
	// up past the current bound. A full page with nothing kept ends the walk.
	if n := len(kept); n > 0 && len(rows) == limit {
		last := kept[n-1]
		pageOut.Next = EncodeCursor(remote.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID})
	}
	return pageOut, nil
}

// below reports whether row sorts strictly below c under the
// (updated_at DESC, id DESC) total order.
func below(row remote.Link, c remote.Cursor) bool {
	if row.UpdatedAt.Before(c.UpdatedAt) {
		return true
	}
	return row.UpdatedAt.Equal(c.UpdatedAt) && row.ID < c.ID
}

// EncodeCursor renders a cursor as an opaque URL-safe string.
func EncodeCursor(c remote.Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a string produced by EncodeCursor. Garbage input is an
// error rather than a silent restart from the top.
func DecodeCursor(s string) (remote.Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return remote.Cursor{}, fmt.Errorf("decoding cursor: %w", err)
	}
	var c remote.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return remote.Cursor{}, fmt.Errorf("parsing cursor: %w", err)
	}
	if c.ID == "" || c.UpdatedAt.IsZero() {
		return remote.Cursor{}, fmt.Errorf("parsing cursor: missing fields")
	}
	return c, nil
}
