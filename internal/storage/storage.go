// Package storage is the optional cross-cycle cache.
//
// It holds data that is expensive but safe to reuse between cycles: game
// achievement schemas and global rarity snapshots, both keyed by app id with
// a TTL. Losing or disabling it only costs extra upstream fetches.
//
// Completion-notification state deliberately does NOT live here; it is
// in-memory for the process lifetime so a restart re-arms all completion
// notifications. See tracker.CompletionTracker.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"trophybot/internal/steam"
	logx "trophybot/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	SchemaTTL   time.Duration // 0 means default (24h)
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the cache API the tracker and enricher use.
type Store interface {
	GetSchema(ctx context.Context, appID int) ([]steam.SchemaAchievement, bool, error)
	PutSchema(ctx context.Context, appID int, defs []steam.SchemaAchievement) error

	GetRarity(ctx context.Context, appID int) (map[string]float64, bool, error)
	PutRarity(ctx context.Context, appID int, pct map[string]float64) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
