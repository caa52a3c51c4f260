// Package enrich looks up global achievement rarity (the percentage of all
// players that unlocked each achievement).
//
// Rarity is decoration, not correctness: the pipeline dispatches fine
// without it, so every failure here degrades to "no rarity" instead of
// propagating.
package enrich

import (
	"context"
	"time"

	logx "trophybot/pkg/logx"
)

// Source is the upstream lookup. *steam.Client satisfies it.
type Source interface {
	GlobalAchievementPercentages(ctx context.Context, appID int) (map[string]float64, error)
}

// Cache is an optional cross-cycle rarity cache.
type Cache interface {
	GetRarity(ctx context.Context, appID int) (map[string]float64, bool, error)
	PutRarity(ctx context.Context, appID int, pct map[string]float64) error
}

type Config struct {
	Enabled bool

	// Timeout bounds one lookup (default 8s).
	Timeout time.Duration
}

type Service struct {
	cfg   Config
	src   Source
	cache Cache
	log   logx.Logger
}

func New(cfg Config, src Source, log logx.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, log: log}
}

// SetCache installs the optional cache.
func (s *Service) SetCache(c Cache) { s.cache = c }

// Rarity returns the global unlock percentage per achievement apiname.
// Returns (nil, false) when disabled or unavailable.
func (s *Service) Rarity(ctx context.Context, appID int) (map[string]float64, bool) {
	if s == nil || !s.cfg.Enabled || s.src == nil {
		return nil, false
	}

	if s.cache != nil {
		pct, ok, err := s.cache.GetRarity(ctx, appID)
		if err != nil {
			s.log.Debug("rarity cache read failed", logx.Int("app_id", appID), logx.Err(err))
		} else if ok {
			return pct, true
		}
	}

	lctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pct, err := s.src.GlobalAchievementPercentages(lctx, appID)
	if err != nil {
		s.log.Debug("rarity lookup failed", logx.Int("app_id", appID), logx.Err(err))
		return nil, false
	}
	if len(pct) == 0 {
		return nil, false
	}

	if s.cache != nil {
		if err := s.cache.PutRarity(ctx, appID, pct); err != nil {
			s.log.Debug("rarity cache write failed", logx.Int("app_id", appID), logx.Err(err))
		}
	}
	return pct, true
}
