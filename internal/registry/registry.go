// Package registry persists managed-application records in SQLite so that
// every invocation process, and every capture sidecar, observes the same
// state. SQLite file locking plus a bounded busy timeout is the only
// cross-process coordination point in the system.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/loykin/appctl/internal/apperr"
)

// ErrNotFound is returned when no record exists for a handle.
var ErrNotFound = errors.New("registry: record not found")

const defaultBusyTimeoutMS = 3000

// DefaultLogCap bounds the per-handle log buffer; oldest lines are evicted
// once the cap is reached so the target's own I/O is never blocked.
const DefaultLogCap = 1000

// Store is the durable registry. Safe for use from concurrent processes; all
// read-modify-write cycles run inside immediate transactions.
type Store struct {
	db     *sql.DB
	logCap int
}

// Open opens (or creates) the registry database at path and ensures schema.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("registry: empty path")
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	// immediate txlock avoids deferred-lock upgrade deadlocks between racing
	// invocations; busy_timeout bounds the wait, expiry surfaces as RegistryBusy
	dsn := "file:" + p +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(" + strconv.Itoa(defaultBusyTimeoutMS) + ")" +
		"&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, classify(err)
	}
	s := &Store{db: db, logCap: DefaultLogCap}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SetLogCap overrides the per-handle log buffer bound.
func (s *Store) SetLogCap(n int) {
	if n > 0 {
		s.logCap = n
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS apps(
			handle TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			launch_path TEXT NOT NULL DEFAULT '',
			launch_args TEXT NOT NULL DEFAULT '[]',
			attached BOOLEAN NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			window_ref TEXT NOT NULL DEFAULT '',
			devtools_port INTEGER NOT NULL DEFAULT 0,
			cpu_percent REAL NOT NULL DEFAULT 0,
			memory_rss INTEGER NOT NULL DEFAULT 0,
			memory_vms INTEGER NOT NULL DEFAULT 0,
			disk_read_bytes INTEGER NOT NULL DEFAULT 0,
			disk_write_bytes INTEGER NOT NULL DEFAULT 0,
			num_threads INTEGER NOT NULL DEFAULT 0,
			sampled_at TIMESTAMP NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_apps_status ON apps(status);`,
		`CREATE TABLE IF NOT EXISTS app_logs(
			handle TEXT NOT NULL,
			seq INTEGER NOT NULL,
			stream TEXT NOT NULL,
			line TEXT NOT NULL,
			captured_at TIMESTAMP NOT NULL,
			PRIMARY KEY(handle, seq)
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return classify(err)
		}
	}
	return nil
}

// NewHandle allocates an opaque handle. Handles are random UUIDs and are never
// reassigned: a collision would violate the primary key and fail the insert.
func NewHandle() string { return uuid.NewString() }

// Insert persists a freshly created record.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	args, err := json.Marshal(rec.LaunchArgs)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO apps(handle, pid, launch_path, launch_args, attached,
			started_at, status, window_ref, devtools_port, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.Handle, rec.PID, rec.LaunchPath, string(args), rec.Attached,
		rec.StartedAt.UTC(), string(rec.Status), rec.WindowRef, rec.DevtoolsPort, now)
	return classify(err)
}

// Get returns the record for handle.
func (s *Store) Get(ctx context.Context, handle string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` FROM apps WHERE handle=?;`, handle)
	return scanRecord(row)
}

// WithRecord runs fn against the current record inside an immediate
// transaction and writes the mutated record back, giving read-modify-write
// atomicity across process boundaries.
func (s *Store) WithRecord(ctx context.Context, handle string, fn func(*Record) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, selectCols+` FROM apps WHERE handle=?;`, handle)
	rec, err := scanRecord(row)
	if err != nil {
		return err
	}
	prev := rec.Status
	if err := fn(&rec); err != nil {
		return err
	}
	if prev.Terminal() && rec.Status != prev {
		// terminal states never transition out
		rec.Status = prev
	}
	args, err := json.Marshal(rec.LaunchArgs)
	if err != nil {
		return err
	}
	var sampledAt any
	if !rec.Sample.Timestamp.IsZero() {
		sampledAt = rec.Sample.Timestamp.UTC()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE apps SET pid=?, launch_path=?, launch_args=?, attached=?,
			started_at=?, status=?, window_ref=?, devtools_port=?,
			cpu_percent=?, memory_rss=?, memory_vms=?,
			disk_read_bytes=?, disk_write_bytes=?, num_threads=?,
			sampled_at=?, updated_at=?
		WHERE handle=?;`,
		rec.PID, rec.LaunchPath, string(args), rec.Attached,
		rec.StartedAt.UTC(), string(rec.Status), rec.WindowRef, rec.DevtoolsPort,
		rec.Sample.CPUPercent, rec.Sample.MemoryRSS, rec.Sample.MemoryVMS,
		rec.Sample.DiskReadBytes, rec.Sample.DiskWriteBytes, rec.Sample.NumThreads,
		sampledAt, time.Now().UTC(), rec.Handle)
	if err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

// SetStatus applies a guarded running->to transition. It reports whether the
// row changed; a record already in a terminal state is left untouched, which
// makes stop idempotent and keeps transitions monotone.
func (s *Store) SetStatus(ctx context.Context, handle string, to Status) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE apps SET status=?, updated_at=? WHERE handle=? AND status=?;`,
		string(to), time.Now().UTC(), handle, string(StatusRunning))
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateSample stores the latest resource snapshot for handle.
func (s *Store) UpdateSample(ctx context.Context, handle string, smp ResourceSample) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE apps SET cpu_percent=?, memory_rss=?, memory_vms=?,
			disk_read_bytes=?, disk_write_bytes=?, num_threads=?,
			sampled_at=?, updated_at=?
		WHERE handle=?;`,
		smp.CPUPercent, smp.MemoryRSS, smp.MemoryVMS,
		smp.DiskReadBytes, smp.DiskWriteBytes, smp.NumThreads,
		smp.Timestamp.UTC(), time.Now().UTC(), handle)
	return classify(err)
}

// SetWindowRef caches the resolved native window reference.
func (s *Store) SetWindowRef(ctx context.Context, handle, ref string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE apps SET window_ref=?, updated_at=? WHERE handle=?;`,
		ref, time.Now().UTC(), handle)
	return classify(err)
}

// SetDevtoolsPort caches the discovered debug port.
func (s *Store) SetDevtoolsPort(ctx context.Context, handle string, port int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE apps SET devtools_port=?, updated_at=? WHERE handle=?;`,
		port, time.Now().UTC(), handle)
	return classify(err)
}

// ListByStatus returns all records currently in the given status.
func (s *Store) ListByStatus(ctx context.Context, st Status) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` FROM apps WHERE status=? ORDER BY started_at;`, string(st))
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// List returns every record in the registry.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` FROM apps ORDER BY started_at;`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// AppendLog appends one captured line for handle, assigning the next sequence
// number and evicting the oldest lines beyond the buffer cap.
func (s *Store) AppendLog(ctx context.Context, handle, stream, line string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM app_logs WHERE handle=?;`, handle)
	if err := row.Scan(&next); err != nil {
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO app_logs(handle, seq, stream, line, captured_at)
		VALUES(?, ?, ?, ?, ?);`,
		handle, next, stream, line, time.Now().UTC()); err != nil {
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM app_logs WHERE handle=? AND seq<=?;`,
		handle, next-int64(s.logCap)); err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

// Logs returns the newest max lines for handle in capture order, or all
// retained lines when max <= 0.
func (s *Store) Logs(ctx context.Context, handle string, max int) ([]LogLine, error) {
	q := `SELECT seq, stream, line, captured_at FROM app_logs WHERE handle=? ORDER BY seq;`
	args := []any{handle}
	if max > 0 {
		q = `SELECT seq, stream, line, captured_at FROM (
			SELECT seq, stream, line, captured_at FROM app_logs
			WHERE handle=? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq;`
		args = append(args, max)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	var out []LogLine
	for rows.Next() {
		var l LogLine
		var ts time.Time
		if err := rows.Scan(&l.Seq, &l.Stream, &l.Line, &ts); err != nil {
			return nil, classify(err)
		}
		l.CapturedAt = ts
		out = append(out, l)
	}
	return out, classify(rows.Err())
}

const selectCols = `SELECT handle, pid, launch_path, launch_args, attached,
	started_at, status, window_ref, devtools_port,
	cpu_percent, memory_rss, memory_vms, disk_read_bytes, disk_write_bytes,
	num_threads, sampled_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var args string
	var status string
	var sampledAt sql.NullTime
	err := row.Scan(&rec.Handle, &rec.PID, &rec.LaunchPath, &args, &rec.Attached,
		&rec.StartedAt, &status, &rec.WindowRef, &rec.DevtoolsPort,
		&rec.Sample.CPUPercent, &rec.Sample.MemoryRSS, &rec.Sample.MemoryVMS,
		&rec.Sample.DiskReadBytes, &rec.Sample.DiskWriteBytes,
		&rec.Sample.NumThreads, &sampledAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, classify(err)
	}
	rec.Status = Status(status)
	if sampledAt.Valid {
		rec.Sample.Timestamp = sampledAt.Time
	}
	if err := json.Unmarshal([]byte(args), &rec.LaunchArgs); err != nil {
		return Record{}, apperr.Wrap(apperr.RegistryCorrupt, err, "launch_args for %s", rec.Handle)
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

// classify maps driver failures onto the taxonomy: exhausted busy waits become
// RegistryBusy, structural damage becomes RegistryCorrupt. A corrupt store is
// fatal for the invocation and is never repaired by discarding state.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked"):
		return apperr.Wrap(apperr.RegistryBusy, err, "registry lock wait exhausted")
	case strings.Contains(msg, "SQLITE_CORRUPT") || strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "not a database"):
		return apperr.Wrap(apperr.RegistryCorrupt, err, "registry store unreadable")
	default:
		return err
	}
}
