package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cadence/internal/task"
	logx "cadence/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r task.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id, task, started_at, finished_at, exit_status, outcome, signal, err, timed_out)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.Task, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.ExitStatus,
		string(r.Outcome), nullStr(r.Signal), nullStr(r.Error), r.TimedOut,
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, q Query) ([]task.Record, error) {
	var (
		where []string
		args  []any
	)
	if q.Task != "" {
		where = append(where, "task = ?")
		args = append(args, q.Task)
	}
	if q.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(q.Outcome))
	}
	if !q.Since.IsZero() {
		where = append(where, "finished_at >= ?")
		args = append(args, q.Since.UnixNano())
	}

	query := `SELECT run_id, task, started_at, finished_at, exit_status, outcome, signal, err, timed_out FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY finished_at DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.Record
	for rows.Next() {
		var (
			r                 task.Record
			started, finished int64
			outcome           string
			sig, msg          sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.Task, &started, &finished, &r.ExitStatus, &outcome, &sig, &msg, &r.TimedOut); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		r.Outcome = task.Outcome(outcome)
		r.Signal = sig.String
		r.Error = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
