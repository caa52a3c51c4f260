package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"trophybot/internal/tracker"
)

// Telegram caps photo captions at 1024 characters; keep headroom for tags.
const captionLimit = 950

const unlockTimeFormat = "02/01/06 15:04:05"

// RenderEvent renders one achievement notification as Telegram HTML.
//
// Layout mirrors the notification card: achievement title linked to the
// store page, description, progress line, optional rarity, and a footer
// with the persona and unlock time.
func RenderEvent(ev tracker.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🏆 <b>%s</b>\n", esc(ev.Unlock.Name))
	fmt.Fprintf(&b, "%s\n", link(ev.Game.Name, ev.Game.StoreURL))

	desc := ev.Definition.Description
	if desc == "" {
		desc = ev.Unlock.Description
	}
	if ev.Definition.Hidden && desc == "" {
		desc = "Hidden achievement"
	}
	if desc != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", esc(clip(desc, 300)))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Progress: %d/%d (%.2f%%)\n", ev.CurrentCount, ev.TotalCount, ev.Percentage())
	if ev.HasRarity {
		fmt.Fprintf(&b, "Rarity: %.1f%% of players\n", ev.RarityPct)
	}

	unlocked := ""
	if t := ev.UnlockTime(); !t.IsZero() {
		unlocked = " • " + t.Format(unlockTimeFormat)
	}
	fmt.Fprintf(&b, "\n%s%s", link(ev.Account.Name, ev.Account.ProfileURL), esc(unlocked))

	return clipCaption(b.String())
}

// RenderCompletion renders the 100%-completion ("platinum") notification.
func RenderCompletion(c tracker.Completion) string {
	var b strings.Builder

	b.WriteString("💯 <b>Platinum unlocked</b>\n")
	fmt.Fprintf(&b, "%s has completed all %d achievements for %s!\n",
		link(c.Account.Name, c.Account.ProfileURL),
		c.TotalCount,
		link(c.Game.Name, c.Game.StoreURL))

	if c.HasSpan {
		fmt.Fprintf(&b, "\nCompleted in %s", esc(formatSpan(c.Span)))
	}

	return clipCaption(b.String())
}

func esc(s string) string { return html.EscapeString(s) }

func link(text, url string) string {
	if strings.TrimSpace(url) == "" {
		return esc(text)
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, esc(url), esc(text))
}

func clip(s string, max int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max-1]) + "…"
}

// clipCaption trims overly long captions at a newline boundary when one is
// close enough, so a truncated message still ends on a whole line.
func clipCaption(s string) string {
	rs := []rune(s)
	if len(rs) <= captionLimit {
		return s
	}
	cut := captionLimit
	for i := captionLimit - 1; i > captionLimit/2; i-- {
		if rs[i] == '\n' {
			cut = i
			break
		}
	}
	return string(rs[:cut])
}

// formatSpan renders a completion time span the way a human reads it,
// keeping the two most significant units.
func formatSpan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
