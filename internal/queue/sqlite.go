// Package queue is the durable local intent queue. Every capture surface
// records user intent here before any network attempt; the reconciler
// consumes entries only after the remote confirms them.
package queue

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/avelis/readthis/internal/remote"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Queue wraps a SQLite database holding pending intents.
type Queue struct {
	db *sql.DB
}

// Open opens (or creates) the queue database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory queue (used by
// tests). The file may be shared by several local processes; WAL mode and a
// busy timeout keep concurrent access safe.
func Open(dataDir string) (*Queue, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "queue.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	q := &Queue{db: db}
	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return q, nil
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

func (q *Queue) migrate() error {
	if _, err := q.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := q.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := q.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (q *Queue) AppliedMigrations() ([]int, error) {
	rows, err := q.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Enqueue records an intent for target, replacing any existing entry for the
// same target. The new entry takes the tail position so capture order always
// reflects the most recent user action. Local-only; never touches the network.
func (q *Queue) Enqueue(targetURL string, desired remote.Status, origin string) (Intent, error) {
	if !desired.Valid() {
		return Intent{}, fmt.Errorf("invalid desired status %q", desired)
	}

	intent := Intent{
		ID:         uuid.New().String(),
		Target:     targetURL,
		Desired:    desired,
		CapturedAt: time.Now().UTC(),
		Origin:     origin,
	}

	tx, err := q.db.Begin()
	if err != nil {
		return Intent{}, fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM intents WHERE target = ?", targetURL); err != nil {
		tx.Rollback()
		return Intent{}, fmt.Errorf("replacing prior intent: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO intents (id, target, desired, captured_at, origin)
		VALUES (?, ?, ?, ?, ?)`,
		intent.ID, intent.Target, string(intent.Desired),
		intent.CapturedAt.Format(time.RFC3339Nano), intent.Origin,
	); err != nil {
		tx.Rollback()
		return Intent{}, fmt.Errorf("inserting intent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Intent{}, fmt.Errorf("committing enqueue: %w", err)
	}
	return intent, nil
}

// Snapshot returns the current queue in capture order. Read-only.
func (q *Queue) Snapshot() ([]Intent, error) {
	rows, err := q.db.Query(`
		SELECT id, target, desired, captured_at, origin, last_error
		FROM intents ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []Intent
	for rows.Next() {
		var it Intent
		var desired, capturedAt string
		if err := rows.Scan(&it.ID, &it.Target, &desired, &capturedAt, &it.Origin, &it.LastError); err != nil {
			return nil, err
		}
		it.Desired = remote.Status(desired)
		t, err := time.Parse(time.RFC3339Nano, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing captured_at: %w", err)
		}
		it.CapturedAt = t
		intents = append(intents, it)
	}
	return intents, rows.Err()
}

// Get returns the pending intent for target, or ErrNotFound.
func (q *Queue) Get(targetURL string) (Intent, error) {
	var it Intent
	var desired, capturedAt string
	err := q.db.QueryRow(`
		SELECT id, target, desired, captured_at, origin, last_error
		FROM intents WHERE target = ?`, targetURL,
	).Scan(&it.ID, &it.Target, &desired, &capturedAt, &it.Origin, &it.LastError)
	if err == sql.ErrNoRows {
		return Intent{}, ErrNotFound
	}
	if err != nil {
		return Intent{}, err
	}
	it.Desired = remote.Status(desired)
	t, err := time.Parse(time.RFC3339Nano, capturedAt)
	if err != nil {
		return Intent{}, fmt.Errorf("parsing captured_at: %w", err)
	}
	it.CapturedAt = t
	return it, nil
}

// RemoveIntent deletes the intent for target after confirmed remote
// application, but only if it is still the exact entry identified by id. A
// capture between snapshot and removal replaces the row under a fresh id, so
// the stale delete matches nothing and the newer intent stays queued.
// Idempotent: removing an absent or replaced entry is not an error.
func (q *Queue) RemoveIntent(targetURL, id string) error {
	_, err := q.db.Exec("DELETE FROM intents WHERE target = ? AND id = ?", targetURL, id)
	return err
}

// RecordFailure stores the most recent drain error for target, for
// diagnostics only. The intent itself stays queued.
func (q *Queue) RecordFailure(targetURL, msg string) error {
	_, err := q.db.Exec("UPDATE intents SET last_error = ? WHERE target = ?", msg, targetURL)
	return err
}

// Size returns the number of pending intents.
func (q *Queue) Size() (int, error) {
	var n int
	err := q.db.QueryRow("SELECT COUNT(*) FROM intents").Scan(&n)
	return n, err
}
