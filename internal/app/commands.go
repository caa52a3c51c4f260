package app

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"trophybot/internal/steam"
	kit "trophybot/internal/transport"
	logx "trophybot/pkg/logx"
)

const replyTimeout = 10 * time.Second

func (a *App) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-a.updates:
			if !ok {
				return
			}
			if u.Message == nil {
				continue
			}
			a.handleMessage(ctx, u.Message)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *kit.Message) {
	cmd := parseCommand(m.Text)
	if cmd == "" {
		return
	}
	if !a.isOwner(m.FromID) {
		a.log.Debug("command from non-owner ignored",
			logx.String("cmd", cmd),
			logx.Int64("from", m.FromID))
		return
	}

	switch cmd {
	case "status":
		a.replyStatus(ctx, m)
	case "check":
		if a.tryManualCycle() {
			a.reply(ctx, m, "Started a polling cycle.")
		} else {
			a.reply(ctx, m, "A cycle is already running.")
		}
	}
}

// parseCommand extracts the bare command name from "/cmd" or "/cmd@botname",
// returning "" for anything that is not a command.
func parseCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (a *App) isOwner(userID int64) bool {
	a.runnerMu.Lock()
	owners := a.owners
	a.runnerMu.Unlock()
	for _, id := range owners {
		if id == userID {
			return true
		}
	}
	return false
}

func (a *App) replyStatus(ctx context.Context, m *kit.Message) {
	a.statusMu.Lock()
	last := a.lastCycle
	profiles := append([]steam.Account(nil), a.profiles...)
	a.statusMu.Unlock()
	_, sent, failed := a.notif.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "<b>trophybot</b>\n")
	fmt.Fprintf(&b, "Uptime: %s\n", time.Since(a.startedAt).Round(time.Second))
	if last.At.IsZero() {
		b.WriteString("No cycle has run yet.\n")
	} else {
		fmt.Fprintf(&b, "Last cycle: %s (took %s)\n",
			last.At.Format("02/01/06 15:04:05"), last.Took.Round(time.Millisecond))
		fmt.Fprintf(&b, "Accounts: %d, events: %d, completions: %d\n",
			last.Accounts, last.Events, last.Completions)
		if last.FailedItems > 0 || last.AccountErrors > 0 {
			fmt.Fprintf(&b, "Failed items: %d, account errors: %d\n",
				last.FailedItems, last.AccountErrors)
		}
	}
	for _, p := range profiles {
		line := p.Name
		if age := p.Age(time.Now()); age != "" {
			line += " (profile age: " + age + ")"
		}
		fmt.Fprintf(&b, "Tracking: %s\n", html.EscapeString(line))
	}
	fmt.Fprintf(&b, "Sent: %d, failed: %d\n", sent, failed)
	fmt.Fprintf(&b, "Completions tracked this run: %d", a.track.Len())

	a.reply(ctx, m, b.String())
}

func (a *App) reply(ctx context.Context, m *kit.Message, text string) {
	sctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if _, err := a.adapter.SendText(sctx, to, text, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		a.log.Warn("reply failed", logx.Err(err))
	}
}
