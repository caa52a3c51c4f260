package tracker

import (
	"time"

	"trophybot/internal/steam"
)

// Event is one newly unlocked achievement, matched to its schema definition
// and enriched with progress counts. Events are rebuilt from upstream data
// every cycle and consumed by the dispatcher in sorted order.
type Event struct {
	Definition steam.SchemaAchievement
	Unlock     steam.PlayerAchievement
	Game       steam.OwnedGame
	Account    steam.Account

	// TotalCount is the number of achievements in the game's schema.
	TotalCount int

	// CurrentCount is how many achievements the account had unlocked for
	// this game at the instant this one was unlocked.
	CurrentCount int

	// RarityPct is the global unlock percentage (enrichment, best-effort).
	RarityPct float64
	HasRarity bool
}

// UnlockTime returns the unlock instant. Matched events always carry one.
func (e Event) UnlockTime() time.Time {
	if e.Unlock.UnlockTime == nil {
		return time.Time{}
	}
	return *e.Unlock.UnlockTime
}

// Ratio is the unlock progress CurrentCount/TotalCount, 0 when the schema
// is empty.
func (e Event) Ratio() float64 {
	if e.TotalCount <= 0 {
		return 0
	}
	return float64(e.CurrentCount) / float64(e.TotalCount)
}

// Percentage is Ratio as a percentage.
func (e Event) Percentage() float64 { return e.Ratio() * 100 }

// Completion marks an (account, game) pair reaching 100% for the first time
// in this process's lifetime.
type Completion struct {
	Account    steam.Account
	Game       steam.OwnedGame
	TotalCount int

	// Span is the time between the first and the last unlock, when both
	// timestamps are known.
	Span    time.Duration
	HasSpan bool
}

// Result is the outcome of one polling cycle.
type Result struct {
	Events      []Event
	Completions []Completion

	// Profiles are the summaries fetched this cycle, one per account that
	// did not fail. Status reporting renders these (persona, profile age).
	Profiles []steam.Account

	Accounts      int
	FailedItems   int
	StartedAt     time.Time
	FinishedAt    time.Time
	AccountErrors int
}
