package config

import (
	"fmt"
	"os"
	"strings"
)

// Env fallbacks for secrets so they can be kept out of the config file.
const (
	EnvTelegramToken = "TROPHYBOT_TELEGRAM_TOKEN"
	EnvSteamAPIKey   = "TROPHYBOT_STEAM_API_KEY"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Steam    SteamConfig    `json:"steam"`
	Tracker  TrackerConfig  `json:"tracker"`
	Notifier NotifierConfig `json:"notifier"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Enrich   *EnrichConfig  `json:"enrich,omitempty"`
	Ops      *OpsConfig     `json:"ops,omitempty"`
}

type TelegramConfig struct {
	// Token may be empty; EnvTelegramToken is used as a fallback.
	Token string `json:"token"`

	// ChatID is the channel/group that receives achievement notifications.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`

	// CompletionChatID optionally routes 100%-completion notifications to a
	// separate chat. Zero means "same as chat_id".
	CompletionChatID int64 `json:"completion_chat_id,omitempty"`

	// OwnerUserIDs may invoke bot commands (/status, /check).
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is a Go duration string for the Telegram long poller.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type SteamConfig struct {
	// APIKey is the default Web API key; accounts may override it.
	// EnvSteamAPIKey is used as a fallback.
	APIKey string `json:"api_key,omitempty"`

	Accounts []SteamAccount `json:"accounts"`

	// BaseURL overrides the Steam Web API base (tests only).
	BaseURL string `json:"base_url,omitempty"`

	// RequestTimeout is a Go duration string (default "10s").
	RequestTimeout string `json:"request_timeout,omitempty"`

	// RatePerSec throttles outbound Steam API calls (default 2).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type SteamAccount struct {
	SteamID string `json:"steam_id"`
	APIKey  string `json:"api_key,omitempty"`
}

// TrackerConfig controls the polling cycle.
//
// All durations are Go duration strings (e.g. "10m", "1h").
type TrackerConfig struct {
	// Interval between polling cycles (required).
	Interval string `json:"interval"`

	// Window is the lookback window: only achievements unlocked within it
	// are announced (required).
	Window string `json:"window"`

	// ItemWorkers bounds the per-account fan-out across games (default 3).
	ItemWorkers int `json:"item_workers,omitempty"`
}

// NotifierConfig controls the ordered dispatch loop.
type NotifierConfig struct {
	// MinDelay is the minimum delay between two outbound messages
	// (Go duration string, default "1s").
	MinDelay string `json:"min_delay,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional schema/rarity cache.
//
// Driver "" or "none" disables it; "sqlite" caches game schemas and global
// rarity snapshots across cycles. Completion state is never persisted.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	SchemaTTL   string `json:"schema_ttl,omitempty"`   // Go duration string, default "24h"
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// EnrichConfig controls the optional rarity enrichment lookup.
type EnrichConfig struct {
	Enabled bool   `json:"enabled"`
	Timeout string `json:"timeout,omitempty"` // Go duration string, default "8s"
}

// OpsConfig controls the optional local HTTP surface (/healthz, /status).
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8612"
}

// TelegramToken resolves the bot token, falling back to the environment.
func (c *Config) TelegramToken() string {
	if t := strings.TrimSpace(c.Telegram.Token); t != "" {
		return t
	}
	return strings.TrimSpace(os.Getenv(EnvTelegramToken))
}

// SteamKeyFor resolves the API key for one account, falling back to the
// shared key and then the environment.
func (c *Config) SteamKeyFor(a SteamAccount) string {
	if k := strings.TrimSpace(a.APIKey); k != "" {
		return k
	}
	if k := strings.TrimSpace(c.Steam.APIKey); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv(EnvSteamAPIKey))
}

// Validate checks everything that must be fatal at startup.
func (c *Config) Validate() error {
	if c.TelegramToken() == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken)
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if len(c.Steam.Accounts) == 0 {
		return fmt.Errorf("steam.accounts: at least one account is required")
	}
	for i, a := range c.Steam.Accounts {
		if strings.TrimSpace(a.SteamID) == "" {
			return fmt.Errorf("steam.accounts[%d].steam_id is required", i)
		}
		if c.SteamKeyFor(a) == "" {
			return fmt.Errorf("steam.accounts[%d]: no api key (set steam.api_key, a per-account key, or %s)", i, EnvSteamAPIKey)
		}
	}

	interval, err := ParseDurationField("tracker.interval", c.Tracker.Interval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("tracker.interval must be > 0")
	}
	window, err := ParseDurationField("tracker.window", c.Tracker.Window)
	if err != nil {
		return err
	}
	if window <= 0 {
		return fmt.Errorf("tracker.window must be > 0")
	}
	if c.Tracker.ItemWorkers < 0 {
		return fmt.Errorf("tracker.item_workers must be >= 0")
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"steam.request_timeout", c.Steam.RequestTimeout},
		{"notifier.min_delay", c.Notifier.MinDelay},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.schema_ttl", c.Storage.SchemaTTL); err != nil {
			return err
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Enrich != nil {
		if _, err := ParseDurationField("enrich.timeout", c.Enrich.Timeout); err != nil {
			return err
		}
	}
	return nil
}
