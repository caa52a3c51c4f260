package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"trophybot/internal/steam"
	logx "trophybot/pkg/logx"
)

type fakeAPI struct {
	summary      func(steamID string) (steam.Account, error)
	owned        func(steamID string) ([]steam.OwnedGame, error)
	recent       func(steamID string) ([]steam.OwnedGame, error)
	schema       func(appID int) ([]steam.SchemaAchievement, error)
	achievements func(steamID string, appID int) ([]steam.PlayerAchievement, error)
}

func (f *fakeAPI) PlayerSummary(_ context.Context, _, steamID string) (steam.Account, error) {
	if f.summary == nil {
		return steam.Account{SteamID: steamID, Name: "player-" + steamID}, nil
	}
	return f.summary(steamID)
}

func (f *fakeAPI) OwnedGames(_ context.Context, _, steamID string) ([]steam.OwnedGame, error) {
	if f.owned == nil {
		return nil, nil
	}
	return f.owned(steamID)
}

func (f *fakeAPI) RecentlyPlayedGames(_ context.Context, _, steamID string) ([]steam.OwnedGame, error) {
	if f.recent == nil {
		return nil, nil
	}
	return f.recent(steamID)
}

func (f *fakeAPI) GameSchema(_ context.Context, _ string, appID int) ([]steam.SchemaAchievement, error) {
	if f.schema == nil {
		return nil, nil
	}
	return f.schema(appID)
}

func (f *fakeAPI) PlayerAchievements(_ context.Context, _, steamID string, appID int) ([]steam.PlayerAchievement, error) {
	if f.achievements == nil {
		return nil, nil
	}
	return f.achievements(steamID, appID)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRunner(api API) *Runner {
	return NewRunner(Config{
		Window:      time.Hour,
		ItemWorkers: 1,
		Now:         func() time.Time { return testNow },
	}, api, nil, logx.Nop())
}

func TestRunCycleSingleNewUnlock(t *testing.T) {
	played := testNow.Add(-10 * time.Minute)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 440, Name: "TF2", LastPlayed: ts(played)}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{
				{APIName: "A", DisplayName: "Alpha"},
				{APIName: "B", DisplayName: "Beta"},
				{APIName: "C", DisplayName: "Gamma"},
			}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(testNow.Add(-5 * time.Minute))},
				{Name: "Beta", Achieved: true, UnlockTime: ts(testNow.Add(-48 * time.Hour))},
				{Name: "Gamma", Achieved: false},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})

	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	ev := res.Events[0]
	if ev.Definition.APIName != "A" {
		t.Fatalf("event definition = %s, want A", ev.Definition.APIName)
	}
	// Alpha is the 2nd unlock overall, so the count at its instant is 2.
	if ev.CurrentCount != 2 || ev.TotalCount != 3 {
		t.Fatalf("progress = %d/%d, want 2/3", ev.CurrentCount, ev.TotalCount)
	}
	if len(res.Completions) != 0 {
		t.Fatalf("got %d completions, want 0", len(res.Completions))
	}
	if res.FailedItems != 0 || res.AccountErrors != 0 {
		t.Fatalf("failures = (%d items, %d accounts), want none",
			res.FailedItems, res.AccountErrors)
	}
	if len(res.Profiles) != 1 || res.Profiles[0].SteamID != "765" {
		t.Fatalf("profiles = %+v, want the polled account", res.Profiles)
	}
}

func TestRunCycleSkipsInactiveGames(t *testing.T) {
	calls := 0
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{
				{AppID: 1, Name: "stale", LastPlayed: ts(testNow.Add(-3 * time.Hour))},
				{AppID: 2, Name: "never played"},
				{AppID: 3, Name: "future", LastPlayed: ts(testNow.Add(time.Hour))},
			}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			calls++
			return nil, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if calls != 0 {
		t.Fatalf("schema fetched %d times for inactive games, want 0", calls)
	}
	if len(res.Events) != 0 {
		t.Fatalf("got %d events, want 0", len(res.Events))
	}
}

func TestRunCycleMergesRecentlyPlayed(t *testing.T) {
	// The recently-played payload carries no last-played timestamp, and it is
	// the only list where family-shared games appear. A nil timestamp there
	// must not count against the activity filter.
	unlocked := testNow.Add(-5 * time.Minute)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) { return nil, nil },
		recent: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 620, Name: "Portal 2"}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{{APIName: "A", DisplayName: "Alpha"}}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(unlocked)},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Events) != 1 {
		t.Fatalf("got %d events from recently-played game, want 1", len(res.Events))
	}
	if res.Events[0].Game.AppID != 620 {
		t.Fatalf("event game = %d, want 620", res.Events[0].Game.AppID)
	}
}

func TestRunCycleRecentlyPlayedStaleUnlocksFiltered(t *testing.T) {
	// Recently-played games are always processed, but the unlock window
	// still decides what gets announced.
	old := testNow.Add(-48 * time.Hour)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) { return nil, nil },
		recent: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 620, Name: "Portal 2"}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{
				{APIName: "A", DisplayName: "Alpha"},
				{APIName: "B", DisplayName: "Beta"},
			}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(old)},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Events) != 0 {
		t.Fatalf("got %d events for a stale unlock, want 0", len(res.Events))
	}
}

func TestRunCycleOwnedListWinsOverRecent(t *testing.T) {
	// A game on both lists is processed once, with the owned entry's data.
	played := testNow.Add(-time.Minute)
	schemaCalls := 0
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 620, Name: "Portal 2", LastPlayed: ts(played)}}, nil
		},
		recent: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 620, Name: "Portal 2"}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			schemaCalls++
			return []steam.SchemaAchievement{{APIName: "A", DisplayName: "Alpha"}}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(played)},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if schemaCalls != 1 {
		t.Fatalf("schema fetched %d times for a duplicated game, want 1", schemaCalls)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
}

func TestRunCycleGlobalOrdering(t *testing.T) {
	played := testNow.Add(-time.Minute)
	schemas := map[int][]steam.SchemaAchievement{
		1: {{APIName: "L", DisplayName: "Late"}, {APIName: "X1", DisplayName: "x1"}},
		2: {{APIName: "E", DisplayName: "Early"}, {APIName: "X2", DisplayName: "x2"}},
	}
	unlocks := map[int][]steam.PlayerAchievement{
		1: {{Name: "Late", Achieved: true, UnlockTime: ts(testNow.Add(-10 * time.Minute))}},
		2: {{Name: "Early", Achieved: true, UnlockTime: ts(testNow.Add(-30 * time.Minute))}},
	}
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{
				{AppID: 1, Name: "game-1", LastPlayed: ts(played)},
				{AppID: 2, Name: "game-2", LastPlayed: ts(played)},
			}, nil
		},
		schema: func(appID int) ([]steam.SchemaAchievement, error) { return schemas[appID], nil },
		achievements: func(_ string, appID int) ([]steam.PlayerAchievement, error) {
			return unlocks[appID], nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[0].Definition.APIName != "E" || res.Events[1].Definition.APIName != "L" {
		t.Fatalf("order = [%s %s], want [E L] (oldest first)",
			res.Events[0].Definition.APIName, res.Events[1].Definition.APIName)
	}
}

func TestRunCycleOrderingRatioTieBreak(t *testing.T) {
	played := testNow.Add(-time.Minute)
	same := testNow.Add(-10 * time.Minute)
	schemas := map[int][]steam.SchemaAchievement{
		// app 1: 1 of 2 unlocked (ratio 0.5); app 2: 1 of 4 (ratio 0.25)
		1: {{APIName: "H", DisplayName: "High"}, {DisplayName: "h2"}},
		2: {{APIName: "LO", DisplayName: "Low"}, {DisplayName: "l2"}, {DisplayName: "l3"}, {DisplayName: "l4"}},
	}
	unlocks := map[int][]steam.PlayerAchievement{
		1: {{Name: "High", Achieved: true, UnlockTime: ts(same)}},
		2: {{Name: "Low", Achieved: true, UnlockTime: ts(same)}},
	}
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{
				{AppID: 1, LastPlayed: ts(played)},
				{AppID: 2, LastPlayed: ts(played)},
			}, nil
		},
		schema: func(appID int) ([]steam.SchemaAchievement, error) { return schemas[appID], nil },
		achievements: func(_ string, appID int) ([]steam.PlayerAchievement, error) {
			return unlocks[appID], nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[0].Definition.APIName != "LO" || res.Events[1].Definition.APIName != "H" {
		t.Fatalf("tie-break order = [%s %s], want [LO H] (lower ratio first)",
			res.Events[0].Definition.APIName, res.Events[1].Definition.APIName)
	}
}

func TestRunCycleAccountIsolation(t *testing.T) {
	played := testNow.Add(-time.Minute)
	api := &fakeAPI{
		summary: func(steamID string) (steam.Account, error) {
			if steamID == "bad" {
				return steam.Account{}, errors.New("profile fetch failed")
			}
			return steam.Account{SteamID: steamID, Name: "ok"}, nil
		},
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 1, LastPlayed: ts(played)}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{{APIName: "A", DisplayName: "Alpha"}}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(played)},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(),
		[]Credential{{SteamID: "bad"}, {SteamID: "good"}})
	if res.AccountErrors != 1 {
		t.Fatalf("account errors = %d, want 1", res.AccountErrors)
	}
	if len(res.Events) != 1 || res.Events[0].Account.SteamID != "good" {
		t.Fatalf("expected exactly the good account's event, got %+v", res.Events)
	}
	if len(res.Profiles) != 1 || res.Profiles[0].SteamID != "good" {
		t.Fatalf("failed account must not contribute a profile: %+v", res.Profiles)
	}
}

func TestRunCycleItemIsolation(t *testing.T) {
	played := testNow.Add(-time.Minute)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{
				{AppID: 1, LastPlayed: ts(played)},
				{AppID: 2, LastPlayed: ts(played)},
			}, nil
		},
		schema: func(appID int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{{APIName: "A", DisplayName: "Alpha"}}, nil
		},
		achievements: func(_ string, appID int) ([]steam.PlayerAchievement, error) {
			if appID == 1 {
				return nil, errors.New("stats are private")
			}
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(played)},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if res.FailedItems != 1 {
		t.Fatalf("failed items = %d, want 1", res.FailedItems)
	}
	if len(res.Events) != 1 || res.Events[0].Game.AppID != 2 {
		t.Fatalf("expected the surviving game's event, got %+v", res.Events)
	}
	if res.AccountErrors != 0 {
		t.Fatalf("account errors = %d, want 0", res.AccountErrors)
	}
}

func TestRunCycleCompletionOnce(t *testing.T) {
	played := testNow.Add(-time.Minute)
	first := testNow.Add(-72 * time.Hour)
	last := testNow.Add(-5 * time.Minute)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 400, Name: "Portal", LastPlayed: ts(played)}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{
				{APIName: "A", DisplayName: "Alpha"},
				{APIName: "B", DisplayName: "Beta"},
			}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(first)},
				{Name: "Beta", Achieved: true, UnlockTime: ts(last)},
			}, nil
		},
	}

	r := newTestRunner(api)
	res := r.RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(res.Completions))
	}
	comp := res.Completions[0]
	if comp.TotalCount != 2 || comp.Game.AppID != 400 {
		t.Fatalf("completion = %+v", comp)
	}
	if !comp.HasSpan || comp.Span != last.Sub(first) {
		t.Fatalf("span = (%v, %v), want %v", comp.HasSpan, comp.Span, last.Sub(first))
	}

	// A second cycle over the same state must not re-announce.
	res = r.RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Completions) != 0 {
		t.Fatalf("second cycle produced %d completions, want 0", len(res.Completions))
	}
}

func TestRunCycleCompletionIgnoresWindow(t *testing.T) {
	// All unlocks are older than the window: no events, but the completion
	// is still detected from the full achieved set.
	played := testNow.Add(-time.Minute)
	old := testNow.Add(-48 * time.Hour)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 400, LastPlayed: ts(played)}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{{APIName: "A", DisplayName: "Alpha"}}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(old)},
			}, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Events) != 0 {
		t.Fatalf("got %d events, want 0", len(res.Events))
	}
	if len(res.Completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(res.Completions))
	}
}

func TestRunCycleEmptySchemaSkipped(t *testing.T) {
	played := testNow.Add(-time.Minute)
	achCalls := 0
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 10, LastPlayed: ts(played)}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) { return nil, nil },
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			achCalls++
			return nil, nil
		},
	}

	res := newTestRunner(api).RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if achCalls != 0 {
		t.Fatalf("achievements fetched %d times for a schemaless game, want 0", achCalls)
	}
	if len(res.Events) != 0 || len(res.Completions) != 0 {
		t.Fatalf("unexpected output for schemaless game: %+v", res)
	}
}

type fakeEnricher struct{ pct map[string]float64 }

func (f *fakeEnricher) Rarity(context.Context, int) (map[string]float64, bool) {
	return f.pct, f.pct != nil
}

func TestRunCycleRarityEnrichment(t *testing.T) {
	played := testNow.Add(-time.Minute)
	api := &fakeAPI{
		owned: func(string) ([]steam.OwnedGame, error) {
			return []steam.OwnedGame{{AppID: 1, LastPlayed: ts(played)}}, nil
		},
		schema: func(int) ([]steam.SchemaAchievement, error) {
			return []steam.SchemaAchievement{{APIName: "A", DisplayName: "Alpha"}}, nil
		},
		achievements: func(string, int) ([]steam.PlayerAchievement, error) {
			return []steam.PlayerAchievement{
				{Name: "Alpha", Achieved: true, UnlockTime: ts(played)},
			}, nil
		},
	}

	r := newTestRunner(api)
	r.SetEnricher(&fakeEnricher{pct: map[string]float64{"A": 3.7}})
	res := r.RunCycle(context.Background(), []Credential{{SteamID: "765"}})
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if !res.Events[0].HasRarity || res.Events[0].RarityPct != 3.7 {
		t.Fatalf("rarity = (%v, %v), want (true, 3.7)",
			res.Events[0].HasRarity, res.Events[0].RarityPct)
	}
}

func TestEventRatioZeroTotal(t *testing.T) {
	ev := Event{CurrentCount: 3}
	if ev.Ratio() != 0 || ev.Percentage() != 0 {
		t.Fatalf("zero-total ratio = %v%%, want 0", ev.Percentage())
	}
}
