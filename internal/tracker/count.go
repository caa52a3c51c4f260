package tracker

import (
	"sort"

	"trophybot/internal/steam"
)

// CountedUnlock is an achieved record annotated with the running unlock
// count at its unlock instant.
type CountedUnlock struct {
	Record       steam.PlayerAchievement
	CurrentCount int
}

// AssignCounts reconstructs the historical running count for every achieved,
// timestamped record of one (account, game) pair.
//
// Records are sorted by unlock time descending (stable, ties keep input
// order) and assigned a strictly decreasing count starting at the total
// number of achieved records. Achieved records without a usable timestamp
// cannot be placed on the timeline: they are excluded from the output but
// still count toward the starting total, so the timestamped records keep
// their correct historical positions.
//
// No running counter is persisted anywhere; this is recomputed from the full
// achieved set every cycle.
func AssignCounts(recs []steam.PlayerAchievement) []CountedUnlock {
	achieved := 0
	timestamped := make([]CountedUnlock, 0, len(recs))
	for _, r := range recs {
		if !r.Achieved {
			continue
		}
		achieved++
		if r.UnlockTime != nil {
			timestamped = append(timestamped, CountedUnlock{Record: r})
		}
	}

	sort.SliceStable(timestamped, func(i, j int) bool {
		return timestamped[i].Record.UnlockTime.After(*timestamped[j].Record.UnlockTime)
	})

	cur := achieved
	for i := range timestamped {
		timestamped[i].CurrentCount = cur
		cur--
	}
	return timestamped
}

// AchievedCount counts every achieved record, timestamped or not. Completion
// detection uses this against the schema size.
func AchievedCount(recs []steam.PlayerAchievement) int {
	n := 0
	for _, r := range recs {
		if r.Achieved {
			n++
		}
	}
	return n
}
