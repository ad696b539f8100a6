package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"slacklog/pkg/logx"
)

//go:embed schema.sql
var schema string

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	keep int

	inserts    atomic.Uint64
	pruneEvery uint64
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
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}

	keep := cfg.keep()
	return &sqliteStore{
		db:         db,
		log:        log,
		keep:       keep,
		pruneEvery: uint64(max(keep/10, 1)),
	}, nil
}

func (s *sqliteStore) Append(ctx context.Context, e Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, at, source, level, logger, service, environment, message, outcome, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.Format(time.RFC3339Nano), e.Source, e.Level,
		nullStr(e.Logger), nullStr(e.Service), nullStr(e.Environment),
		e.Message, e.Outcome, nullStr(e.Error),
	)
	if err == nil && s.inserts.Add(1)%s.pruneEvery == 0 {
		if perr := s.prune(ctx); perr != nil {
			s.log.Debug("history prune failed", logx.Err(perr), logx.NoSlack())
		}
	}
	return err
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE seq <= (SELECT MAX(seq) FROM deliveries) - ?`, s.keep)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = s.keep
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, source, level, logger, service, environment, message, outcome, err
		 FROM deliveries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                          Entry
			at                         string
			logger, svc, env, errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Source, &e.Level, &logger, &svc, &env, &e.Message, &e.Outcome, &errText); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Logger, e.Service, e.Environment, e.Error = logger.String, svc.String, env.String, errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
