package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"trophybot/internal/steam"
	logx "trophybot/pkg/logx"
)

// API is the upstream read surface the cycle needs. *steam.Client satisfies
// it; tests substitute fakes.
type API interface {
	PlayerSummary(ctx context.Context, apiKey, steamID string) (steam.Account, error)
	OwnedGames(ctx context.Context, apiKey, steamID string) ([]steam.OwnedGame, error)
	RecentlyPlayedGames(ctx context.Context, apiKey, steamID string) ([]steam.OwnedGame, error)
	GameSchema(ctx context.Context, apiKey string, appID int) ([]steam.SchemaAchievement, error)
	PlayerAchievements(ctx context.Context, apiKey, steamID string, appID int) ([]steam.PlayerAchievement, error)
}

// SchemaCache is an optional cross-cycle cache for game schemas. Failures
// are tolerated; the cycle falls back to a live fetch.
type SchemaCache interface {
	GetSchema(ctx context.Context, appID int) ([]steam.SchemaAchievement, bool, error)
	PutSchema(ctx context.Context, appID int, defs []steam.SchemaAchievement) error
}

// Enricher is the optional rarity lookup. Implementations degrade to
// (nil, false) when the tertiary source is unavailable.
type Enricher interface {
	Rarity(ctx context.Context, appID int) (map[string]float64, bool)
}

// Credential is one tracked account with its API key.
type Credential struct {
	SteamID string
	APIKey  string
}

// Config controls one Runner.
type Config struct {
	// Window is the lookback window for "newly unlocked".
	Window time.Duration

	// ItemWorkers bounds the per-account fan-out across games (default 3).
	ItemWorkers int

	// Join overrides the schema/unlock join (default JoinByDisplayName).
	Join JoinFunc

	// Now is a clock override for tests.
	Now func() time.Time
}

// Runner executes polling cycles: fetch, filter, match, count, aggregate,
// and completion-check across all tracked accounts.
//
// The completion tracker is mutated only here, and cycles never overlap
// (the scheduler enforces single-flight), so a single-writer discipline
// holds throughout a cycle.
type Runner struct {
	cfg    Config
	api    API
	cache  SchemaCache
	enrich Enricher
	track  *CompletionTracker
	log    logx.Logger
}

func NewRunner(cfg Config, api API, track *CompletionTracker, log logx.Logger) *Runner {
	if cfg.Join == nil {
		cfg.Join = JoinByDisplayName
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ItemWorkers <= 0 {
		cfg.ItemWorkers = 3
	}
	if track == nil {
		track = NewCompletionTracker()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg, api: api, track: track, log: log}
}

// SetSchemaCache installs the optional schema cache.
func (r *Runner) SetSchemaCache(c SchemaCache) { r.cache = c }

// SetEnricher installs the optional rarity enrichment.
func (r *Runner) SetEnricher(e Enricher) { r.enrich = e }

// Completions exposes the tracker for status reporting.
func (r *Runner) Completions() *CompletionTracker { return r.track }

// RunCycle runs one full cycle across all accounts and returns the globally
// ordered result.
//
// Accounts are isolated: one account's upstream failure logs and yields an
// empty contribution without affecting the others. Events are sorted by
// unlock time ascending (oldest first), ties broken by unlock progress ratio
// ascending. Completion markers follow the events in a deterministic order.
func (r *Runner) RunCycle(ctx context.Context, creds []Credential) Result {
	now := r.cfg.Now()
	res := Result{StartedAt: now, Accounts: len(creds)}

	for _, cred := range creds {
		if ctx.Err() != nil {
			break
		}
		acc, events, comps, failed, err := r.runAccount(ctx, cred, now)
		res.FailedItems += failed
		if err != nil {
			res.AccountErrors++
			r.log.Warn("account cycle failed",
				logx.String("steam_id", cred.SteamID), logx.Err(err))
			continue
		}
		res.Profiles = append(res.Profiles, acc)
		res.Events = append(res.Events, events...)
		res.Completions = append(res.Completions, comps...)
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		ti, tj := res.Events[i].UnlockTime(), res.Events[j].UnlockTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return res.Events[i].Ratio() < res.Events[j].Ratio()
	})
	sort.SliceStable(res.Completions, func(i, j int) bool {
		if res.Completions[i].Account.SteamID != res.Completions[j].Account.SteamID {
			return res.Completions[i].Account.SteamID < res.Completions[j].Account.SteamID
		}
		return res.Completions[i].Game.AppID < res.Completions[j].Game.AppID
	})

	res.FinishedAt = r.cfg.Now()
	return res
}

func (r *Runner) runAccount(ctx context.Context, cred Credential, now time.Time) (acc steam.Account, events []Event, comps []Completion, failed int, err error) {
	acc, err = r.api.PlayerSummary(ctx, cred.APIKey, cred.SteamID)
	if err != nil {
		return steam.Account{}, nil, nil, 0, err
	}

	owned, err := r.api.OwnedGames(ctx, cred.APIKey, cred.SteamID)
	if err != nil {
		return steam.Account{}, nil, nil, 0, err
	}

	// The recently-played endpoint also surfaces family-shared games that
	// never appear on the owned list. Its failure is not fatal.
	recent, rerr := r.api.RecentlyPlayedGames(ctx, cred.APIKey, cred.SteamID)
	if rerr != nil {
		r.log.Debug("recently-played fetch failed",
			logx.String("steam_id", cred.SteamID), logx.Err(rerr))
	}

	active := r.filterActive(mergeGames(owned, recent), now, acc.Name)
	if len(active) == 0 {
		return acc, nil, nil, 0, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.ItemWorkers)
	)
	for _, g := range active {
		g := g
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			evs, comp, perr := r.processItem(ctx, cred, acc, g, now)
			mu.Lock()
			defer mu.Unlock()
			if perr != nil {
				// One item's failure never aborts its siblings.
				failed++
				r.log.Warn("item processing failed",
					logx.String("steam_id", cred.SteamID),
					logx.Int("app_id", g.AppID),
					logx.String("game", g.Name),
					logx.Err(perr))
				return
			}
			events = append(events, evs...)
			if comp != nil {
				comps = append(comps, *comp)
			}
		}()
	}
	wg.Wait()

	return acc, events, comps, failed, nil
}

// candidate is one game to consider this cycle, tagged with its origin.
type candidate struct {
	game       steam.OwnedGame
	fromRecent bool
}

// mergeGames prefers the owned list and appends recently-played entries not
// already present (de-duplicated by app id). Recently-played-only entries are
// tagged: that payload carries no last-played timestamp, and it is the only
// place family-shared games surface, so the activity filter must not judge
// them by a field their endpoint never reports.
func mergeGames(owned, recent []steam.OwnedGame) []candidate {
	out := make([]candidate, 0, len(owned)+len(recent))
	have := make(map[int]struct{}, len(owned))
	for _, g := range owned {
		have[g.AppID] = struct{}{}
		out = append(out, candidate{game: g})
	}
	for _, g := range recent {
		if _, ok := have[g.AppID]; ok {
			continue
		}
		have[g.AppID] = struct{}{}
		out = append(out, candidate{game: g, fromRecent: true})
	}
	return out
}

// filterActive keeps owned games with activity inside the window. Entries
// that came from the recently-played list pass unconditionally: the endpoint
// itself only returns current activity, and a nil timestamp there means the
// payload omits the field, not that the game is idle.
func (r *Runner) filterActive(games []candidate, now time.Time, persona string) []steam.OwnedGame {
	var active []steam.OwnedGame
	for _, c := range games {
		g := c.game
		if g.LastPlayed != nil && g.LastPlayed.After(now) {
			r.log.Warn("last-played timestamp in the future",
				logx.String("account", persona),
				logx.Int("app_id", g.AppID),
				logx.Time("last_played", *g.LastPlayed))
			continue
		}
		if c.fromRecent || RecentlyActive(g.LastPlayed, now, r.cfg.Window) {
			active = append(active, g)
		}
	}
	return active
}

func (r *Runner) processItem(ctx context.Context, cred Credential, acc steam.Account, game steam.OwnedGame, now time.Time) ([]Event, *Completion, error) {
	defs, err := r.schemaFor(ctx, cred.APIKey, game.AppID)
	if err != nil {
		return nil, nil, err
	}
	if len(defs) == 0 {
		// Game has no achievement schema; nothing to track.
		return nil, nil, nil
	}

	recs, err := r.api.PlayerAchievements(ctx, cred.APIKey, cred.SteamID, game.AppID)
	if err != nil {
		return nil, nil, err
	}

	counted := AssignCounts(recs)
	for _, cu := range counted {
		if cu.Record.UnlockTime.After(now) {
			r.log.Warn("unlock timestamp in the future",
				logx.String("account", acc.Name),
				logx.String("achievement", cu.Record.Name),
				logx.Time("unlocked", *cu.Record.UnlockTime))
		}
	}

	matched := Match(defs, counted, now, r.cfg.Window, r.cfg.Join)

	var rarity map[string]float64
	if len(matched) > 0 && r.enrich != nil {
		rarity, _ = r.enrich.Rarity(ctx, game.AppID)
	}

	events := make([]Event, 0, len(matched))
	for _, m := range matched {
		ev := Event{
			Definition:   m.Definition,
			Unlock:       m.Record,
			Game:         game,
			Account:      acc,
			TotalCount:   len(defs),
			CurrentCount: m.CurrentCount,
		}
		if pct, ok := rarity[m.Definition.APIName]; ok {
			ev.RarityPct = pct
			ev.HasRarity = true
		}
		events = append(events, ev)
	}

	comp := r.checkCompletion(acc, game, defs, recs)
	return events, comp, nil
}

// checkCompletion uses the FULL achieved set, not the window-filtered one,
// so completion is detected even when the completing unlock predates the
// window (the tracker may have started watching after the fact).
func (r *Runner) checkCompletion(acc steam.Account, game steam.OwnedGame, defs []steam.SchemaAchievement, recs []steam.PlayerAchievement) *Completion {
	total := len(defs)
	if total == 0 || AchievedCount(recs) != total {
		return nil
	}
	key := CompletionKey{SteamID: acc.SteamID, AppID: game.AppID}
	if !r.track.MarkNotified(key) {
		return nil
	}

	comp := &Completion{Account: acc, Game: game, TotalCount: total}
	var first, last time.Time
	for _, rec := range recs {
		if !rec.Achieved || rec.UnlockTime == nil {
			continue
		}
		t := *rec.UnlockTime
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	if !first.IsZero() {
		comp.Span = last.Sub(first)
		comp.HasSpan = true
	}
	return comp
}

func (r *Runner) schemaFor(ctx context.Context, apiKey string, appID int) ([]steam.SchemaAchievement, error) {
	if r.cache != nil {
		defs, ok, err := r.cache.GetSchema(ctx, appID)
		if err != nil {
			r.log.Debug("schema cache read failed", logx.Int("app_id", appID), logx.Err(err))
		} else if ok {
			return defs, nil
		}
	}

	defs, err := r.api.GameSchema(ctx, apiKey, appID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.PutSchema(ctx, appID, defs); err != nil {
			r.log.Debug("schema cache write failed", logx.Int("app_id", appID), logx.Err(err))
		}
	}
	return defs, nil
}
