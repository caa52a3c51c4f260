package steam

import (
	"fmt"
	"time"
)

// Account is one tracked Steam identity, rebuilt from GetPlayerSummaries
// every cycle. It is immutable for the duration of a cycle.
type Account struct {
	SteamID    string
	Name       string
	ProfileURL string
	AvatarURL  string
	CreatedAt  time.Time // zero if the profile hides it
}

// Age renders the account age the way the profile card shows it.
// Returns "" when the creation time is unknown.
func (a Account) Age(now time.Time) string {
	if a.CreatedAt.IsZero() || now.Before(a.CreatedAt) {
		return ""
	}
	d := now.Sub(a.CreatedAt)
	days := int(d.Hours() / 24)
	years := days / 365
	days -= years * 365
	months := days / 30
	days -= months * 30
	return fmt.Sprintf("%d year(s), %d month(s), %d day(s)", years, months, days)
}

// OwnedGame is one game on an account's owned (or recently played) list.
type OwnedGame struct {
	AppID    int
	Name     string
	IconURL  string
	StoreURL string

	// LastPlayed is nil when Steam reports no activity timestamp. An unknown
	// timestamp never counts as recent.
	LastPlayed *time.Time
}

// SchemaAchievement is one achievement definition from a game's schema.
// Shared by every account that owns the game.
type SchemaAchievement struct {
	AppID       int
	APIName     string
	DisplayName string
	Hidden      bool
	Description string
	IconURL     string
	IconGrayURL string
}

// PlayerAchievement is one account's unlock record for one achievement.
type PlayerAchievement struct {
	APIName     string
	Achieved    bool
	Name        string
	Description string

	// UnlockTime is nil when the record is not achieved or Steam reports a
	// zero timestamp.
	UnlockTime *time.Time
}

// ---- wire formats ----

type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			SteamID     string `json:"steamid"`
			PersonaName string `json:"personaname"`
			ProfileURL  string `json:"profileurl"`
			AvatarFull  string `json:"avatarfull"`
			TimeCreated int64  `json:"timecreated"`
		} `json:"players"`
	} `json:"response"`
}

type ownedGamesResponse struct {
	Response struct {
		GameCount int        `json:"game_count"`
		Games     []wireGame `json:"games"`
	} `json:"response"`
}

type recentlyPlayedResponse struct {
	Response struct {
		TotalCount int        `json:"total_count"`
		Games      []wireGame `json:"games"`
	} `json:"response"`
}

type wireGame struct {
	AppID           int    `json:"appid"`
	Name            string `json:"name"`
	ImgIconURL      string `json:"img_icon_url"`
	RTimeLastPlayed int64  `json:"rtime_last_played"`
}

type gameSchemaResponse struct {
	Game struct {
		GameName           string `json:"gameName"`
		AvailableGameStats struct {
			Achievements []struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
				Hidden      int    `json:"hidden"`
				Description string `json:"description"`
				Icon        string `json:"icon"`
				IconGray    string `json:"icongray"`
			} `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

type playerAchievementsResponse struct {
	PlayerStats struct {
		Success      bool   `json:"success"`
		Error        string `json:"error"`
		Achievements []struct {
			APIName     string `json:"apiname"`
			Achieved    int    `json:"achieved"`
			UnlockTime  int64  `json:"unlocktime"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

type globalPercentagesResponse struct {
	AchievementPercentages struct {
		Achievements []struct {
			Name    string  `json:"name"`
			Percent float64 `json:"percent"`
		} `json:"achievements"`
	} `json:"achievementpercentages"`
}

func unixOrNil(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0)
	return &t
}

func iconURL(appID int, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("https://media.steampowered.com/steamcommunity/public/images/apps/%d/%s.jpg", appID, hash)
}

func storeURL(appID int) string {
	return fmt.Sprintf("https://store.steampowered.com/app/%d", appID)
}
