package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "phrasecron/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
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

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	log.Debug("run journal opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, job, trigger_kind, scheduled, started, duration_ns, attempts, status, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Job, nullStr(r.Trigger), nullTime(r.Scheduled), r.Started.Format(time.RFC3339Nano),
		int64(r.Duration), r.Attempts, r.Status, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) Runs(ctx context.Context, flt Filter) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT id, job, trigger_kind, scheduled, started, duration_ns, attempts, status, err FROM runs`
	args := []any{}
	if flt.Job != "" {
		q += ` WHERE job = ?`
		args = append(args, flt.Job)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, flt.limit())

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                      RunRecord
			trigger, sched, errStr sql.NullString
			started                string
			durNS                  int64
		)
		if err := rows.Scan(&r.ID, &r.Job, &trigger, &sched, &started, &durNS, &r.Attempts, &r.Status, &errStr); err != nil {
			return nil, err
		}
		r.Trigger = trigger.String
		r.Error = errStr.String
		r.Duration = time.Duration(durNS)
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: started: %w", r.ID, err)
		}
		if sched.Valid {
			if r.Scheduled, err = time.Parse(time.RFC3339Nano, sched.String); err != nil {
				return nil, fmt.Errorf("run %s: scheduled: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
