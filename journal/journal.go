// Package journal keeps a local history of session events in SQLite:
// status changes, log lines, attention requests, session creation and
// removal, and health transitions.
package journal

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/yllada/openvpn3-go/proxy"
	"github.com/yllada/openvpn3-go/vpn"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindStatus    Kind = "status"
	KindLog       Kind = "log"
	KindAttention Kind = "attention"
	KindSession   Kind = "session"
	KindHealth    Kind = "health"
)

// Entry is one journal row.
type Entry struct {
	ID      string
	Time    time.Time
	Session dbus.ObjectPath
	Kind    Kind
	// Code is the kind-specific classification, for example
	// "CONNECTION/CONN_CONNECTED" for a status change.
	Code    string
	Message string
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id      TEXT PRIMARY KEY,
    ts      INTEGER NOT NULL,
    session TEXT NOT NULL,
    kind    TEXT NOT NULL,
    code    TEXT NOT NULL,
    message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_session_ts ON events (session, ts);
CREATE INDEX IF NOT EXISTS events_ts ON events (ts);
`

// Journal is the event store.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) record(ctx context.Context, session dbus.ObjectPath, kind Kind, code, message string) error {
	now := j.now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (id, ts, session, kind, code, message) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), now.UnixNano(), string(session), string(kind), code, message)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", kind, err)
	}
	return nil
}

// RecordStatus stores a status change of session.
func (j *Journal) RecordStatus(ctx context.Context, session dbus.ObjectPath, st proxy.Status) error {
	return j.record(ctx, session, KindStatus, st.Major.String()+"/"+st.Minor.String(), st.Message)
}

// RecordLog stores a log line.
func (j *Journal) RecordLog(ctx context.Context, ev proxy.LogEvent) error {
	return j.record(ctx, ev.Path, KindLog, ev.Group.String()+"/"+ev.Category.String(), strings.TrimRight(ev.Message, "\n"))
}

// RecordAttention stores a request for user interaction.
func (j *Journal) RecordAttention(ctx context.Context, session dbus.ObjectPath, a proxy.AttentionRequired) error {
	return j.record(ctx, session, KindAttention, a.Type.String()+"/"+a.Group.String(), a.Message)
}

// RecordSessionEvent stores session creation or removal.
func (j *Journal) RecordSessionEvent(ctx context.Context, ev proxy.SessionEvent) error {
	return j.record(ctx, ev.Path, KindSession, ev.Type.String(), fmt.Sprintf("owner %d", ev.Owner))
}

// RecordHealth stores a health state transition.
func (j *Journal) RecordHealth(ctx context.Context, session dbus.ObjectPath, from, to vpn.HealthState) error {
	return j.record(ctx, session, KindHealth, to.String(), from.String()+" -> "+to.String())
}

// Query selects journal entries. Zero fields do not filter.
type Query struct {
	Session dbus.ObjectPath
	Kind    Kind
	Since   time.Time
	// Limit caps the number of entries; 0 means 100.
	Limit int
}

// Recent returns matching entries, newest first.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Session != "" {
		where = append(where, "session = ?")
		args = append(args, string(q.Session))
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	stmt := `SELECT id, ts, session, kind, code, message FROM events`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			ts      int64
			session string
			kind    string
		)
		if err := rows.Scan(&e.ID, &ts, &session, &kind, &e.Code, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.Session = dbus.ObjectPath(session)
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
