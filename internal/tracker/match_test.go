package tracker

import (
	"testing"
	"time"

	"trophybot/internal/steam"
)

func TestMatchFiltersByWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := time.Hour

	defs := []steam.SchemaAchievement{
		{APIName: "ACH_A", DisplayName: "Alpha"},
		{APIName: "ACH_B", DisplayName: "Beta"},
	}
	counted := []CountedUnlock{
		{Record: steam.PlayerAchievement{Name: "Alpha", Achieved: true, UnlockTime: ts(now.Add(-10 * time.Minute))}, CurrentCount: 2},
		{Record: steam.PlayerAchievement{Name: "Beta", Achieved: true, UnlockTime: ts(now.Add(-2 * time.Hour))}, CurrentCount: 1},
	}

	got := Match(defs, counted, now, window, nil)
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
	if got[0].Definition.APIName != "ACH_A" || got[0].CurrentCount != 2 {
		t.Fatalf("match = (%s, %d), want (ACH_A, 2)",
			got[0].Definition.APIName, got[0].CurrentCount)
	}
}

func TestMatchUnmatchedRecordDropped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	defs := []steam.SchemaAchievement{{APIName: "ACH_A", DisplayName: "Alpha"}}
	counted := []CountedUnlock{
		{Record: steam.PlayerAchievement{Name: "No Such Name", Achieved: true, UnlockTime: ts(now)}},
	}
	if got := Match(defs, counted, now, time.Hour, nil); len(got) != 0 {
		t.Fatalf("got %d matches for an unknown name, want 0", len(got))
	}
}

func TestMatchDuplicateDisplayNamesMultiMatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	defs := []steam.SchemaAchievement{
		{APIName: "ACH_A1", DisplayName: "Twin"},
		{APIName: "ACH_A2", DisplayName: "Twin"},
	}
	counted := []CountedUnlock{
		{Record: steam.PlayerAchievement{Name: "Twin", Achieved: true, UnlockTime: ts(now)}, CurrentCount: 1},
	}
	got := Match(defs, counted, now, time.Hour, nil)
	if len(got) != 2 {
		t.Fatalf("got %d matches for a duplicate display name, want 2", len(got))
	}
}

func TestMatchCustomJoin(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	defs := []steam.SchemaAchievement{{APIName: "ACH_A", DisplayName: "Renamed"}}
	counted := []CountedUnlock{
		{Record: steam.PlayerAchievement{Name: "ACH_A", Achieved: true, UnlockTime: ts(now)}},
	}
	byAPIName := func(def steam.SchemaAchievement, rec steam.PlayerAchievement) bool {
		return def.APIName == rec.Name
	}
	if got := Match(defs, counted, now, time.Hour, byAPIName); len(got) != 1 {
		t.Fatalf("custom join got %d matches, want 1", len(got))
	}
}
