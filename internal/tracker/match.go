package tracker

import (
	"time"

	"trophybot/internal/steam"
)

// JoinFunc decides whether an unlock record refers to a schema definition.
//
// The schema and player-achievement endpoints do not share a stable internal
// id across all observed API versions, so the default join key is display
// name equality. The join is isolated here so a stable-key join can replace
// it without touching the rest of the pipeline.
type JoinFunc func(def steam.SchemaAchievement, rec steam.PlayerAchievement) bool

// JoinByDisplayName is the default join.
//
// Known limitation: a schema with duplicate display names silently
// multi-matches; callers must not assume uniqueness.
func JoinByDisplayName(def steam.SchemaAchievement, rec steam.PlayerAchievement) bool {
	return def.DisplayName == rec.Name
}

// Matched is a schema definition paired with a recently unlocked record.
type Matched struct {
	Definition   steam.SchemaAchievement
	Record       steam.PlayerAchievement
	CurrentCount int
}

// Match pairs achieved records that were unlocked inside the window with
// their schema definitions. A record may match zero, one, or several
// definitions; every pairing is emitted, preserving the counted ordering.
func Match(defs []steam.SchemaAchievement, counted []CountedUnlock, now time.Time, window time.Duration, join JoinFunc) []Matched {
	if join == nil {
		join = JoinByDisplayName
	}
	var out []Matched
	for _, cu := range counted {
		if !RecentlyActive(cu.Record.UnlockTime, now, window) {
			continue
		}
		for _, def := range defs {
			if join(def, cu.Record) {
				out = append(out, Matched{
					Definition:   def,
					Record:       cu.Record,
					CurrentCount: cu.CurrentCount,
				})
			}
		}
	}
	return out
}
