package flagstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteBackend struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("flagstore: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	b := &sqliteBackend{db: db, log: log}
	if err := b.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqliteBackend) migrate(ctx context.Context) error {
	raw, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, string(raw))
	return err
}

func (b *sqliteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *sqliteBackend) Put(ctx context.Context, key string, rec update.Record) error {
	if b == nil || b.db == nil {
		return ErrClosed
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO flags(key, ts, record) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET ts=excluded.ts, record=excluded.record`,
		key, rec.Timestamp, string(blob),
	)
	return err
}

func (b *sqliteBackend) Get(ctx context.Context, key string) (update.Record, bool, error) {
	if b == nil || b.db == nil {
		return update.Record{}, false, ErrClosed
	}
	var blob string
	err := b.db.QueryRowContext(ctx, `SELECT record FROM flags WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return update.Record{}, false, nil
	}
	if err != nil {
		return update.Record{}, false, err
	}
	var rec update.Record
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return update.Record{}, false, fmt.Errorf("flagstore: corrupt record at %q: %w", key, err)
	}
	return rec, true, nil
}

func (b *sqliteBackend) Delete(ctx context.Context, key string) error {
	if b == nil || b.db == nil {
		return ErrClosed
	}
	_, err := b.db.ExecContext(ctx, `DELETE FROM flags WHERE key = ?`, key)
	return err
}

func (b *sqliteBackend) Keys(ctx context.Context) ([]string, error) {
	if b == nil || b.db == nil {
		return nil, ErrClosed
	}
	rows, err := b.db.QueryContext(ctx, `SELECT key FROM flags ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (b *sqliteBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if b == nil || b.db == nil {
		return 0, ErrClosed
	}
	res, err := b.db.ExecContext(ctx, `DELETE FROM flags WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
