package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trophybot/internal/steam"
	logx "trophybot/pkg/logx"
)

const migrations = `
CREATE TABLE IF NOT EXISTS schema_cache (
	app_id     INTEGER PRIMARY KEY,
	fetched_at INTEGER NOT NULL,
	defs       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rarity_cache (
	app_id     INTEGER PRIMARY KEY,
	fetched_at INTEGER NOT NULL,
	pct        TEXT NOT NULL
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	ttl time.Duration
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
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

	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	ttl := cfg.SchemaTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &sqliteStore{db: db, log: log, ttl: ttl}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSchema(ctx context.Context, appID int) ([]steam.SchemaAchievement, bool, error) {
	raw, ok, err := s.getFresh(ctx, "schema_cache", "defs", appID)
	if err != nil || !ok {
		return nil, false, err
	}
	var defs []steam.SchemaAchievement
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, false, fmt.Errorf("schema_cache decode app %d: %w", appID, err)
	}
	return defs, true, nil
}

func (s *sqliteStore) PutSchema(ctx context.Context, appID int, defs []steam.SchemaAchievement) error {
	b, err := json.Marshal(defs)
	if err != nil {
		return err
	}
	return s.put(ctx, "schema_cache", "defs", appID, b)
}

func (s *sqliteStore) GetRarity(ctx context.Context, appID int) (map[string]float64, bool, error) {
	raw, ok, err := s.getFresh(ctx, "rarity_cache", "pct", appID)
	if err != nil || !ok {
		return nil, false, err
	}
	var pct map[string]float64
	if err := json.Unmarshal(raw, &pct); err != nil {
		return nil, false, fmt.Errorf("rarity_cache decode app %d: %w", appID, err)
	}
	return pct, true, nil
}

func (s *sqliteStore) PutRarity(ctx context.Context, appID int, pct map[string]float64) error {
	b, err := json.Marshal(pct)
	if err != nil {
		return err
	}
	return s.put(ctx, "rarity_cache", "pct", appID, b)
}

func (s *sqliteStore) getFresh(ctx context.Context, table, col string, appID int) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrDisabled
	}
	var (
		fetchedAt int64
		raw       []byte
	)
	// table/col come from the fixed call sites above, never from input.
	q := fmt.Sprintf("SELECT fetched_at, %s FROM %s WHERE app_id = ?", col, table)
	err := s.db.QueryRowContext(ctx, q, appID).Scan(&fetchedAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Since(time.Unix(fetchedAt, 0)) > s.ttl {
		return nil, false, nil
	}
	return raw, true, nil
}

func (s *sqliteStore) put(ctx context.Context, table, col string, appID int, raw []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	q := fmt.Sprintf(
		"INSERT INTO %s(app_id, fetched_at, %s) VALUES(?,?,?) ON CONFLICT(app_id) DO UPDATE SET fetched_at=excluded.fetched_at, %s=excluded.%s",
		table, col, col, col)
	_, err := s.db.ExecContext(ctx, q, appID, time.Now().Unix(), raw)
	return err
}
