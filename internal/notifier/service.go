// Package notifier drains one cycle's ordered result into the chat sink.
//
// Dispatch is deliberately synchronous and single-threaded: the dispatch
// order must be exactly the aggregator's sort order, and the scheduler's
// single-flight guard relies on Dispatch returning only once the queue is
// drained. Pacing between messages is a token bucket configured from the
// minimum inter-message delay.
package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trophybot/internal/tracker"
	kit "trophybot/internal/transport"
	logx "trophybot/pkg/logx"
)

const sendTimeout = 15 * time.Second

type Config struct {
	// MinDelay is the minimum delay between two outbound messages
	// (default 1s).
	MinDelay time.Duration

	// Target receives achievement notifications.
	Target kit.ChatTarget

	// CompletionTarget receives 100%-completion notifications.
	// Zero ChatID means "same as Target".
	CompletionTarget kit.ChatTarget
}

// historyMax bounds the in-memory history kept for /status.
// History never outlives the process.
const historyMax = 200

type HistoryItem struct {
	At   time.Time
	Text string
}

// Stats summarizes one Dispatch call.
type Stats struct {
	Sent    int
	Failed  int
	Dropped int // remainder dropped on shutdown
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter kit.Adapter
	log     logx.Logger

	hmu       sync.Mutex
	history   []HistoryItem
	totalSent uint64
	totalFail uint64
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

// Apply swaps pacing and targets at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.CompletionTarget.ChatID == 0 {
		cfg.CompletionTarget = cfg.Target
	}
	s.cfg = cfg
	// Burst 1: the first send goes out immediately, every following send
	// waits out the minimum delay.
	s.limiter = rate.NewLimiter(rate.Every(cfg.MinDelay), 1)
}

// Dispatch sends every entry of the cycle result in order: achievement
// events first (already globally sorted), then completion markers. A send
// failure is logged and the loop continues; cancellation drops the
// remainder (at-most-once, best-effort).
func (s *Service) Dispatch(ctx context.Context, res tracker.Result) Stats {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	var st Stats
	total := len(res.Events) + len(res.Completions)
	if total == 0 {
		return st
	}

	opts := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

	for _, ev := range res.Events {
		if err := lim.Wait(ctx); err != nil {
			st.Dropped = total - st.Sent - st.Failed
			return st
		}
		caption := RenderEvent(ev)
		if err := s.send(ctx, cfg.Target, ev.Definition.IconURL, caption, opts); err != nil {
			st.Failed++
			s.noteFailure()
			s.log.Warn("achievement notification failed",
				logx.String("account", ev.Account.Name),
				logx.String("achievement", ev.Unlock.Name),
				logx.Err(err))
			continue
		}
		st.Sent++
		s.appendHistory(ev.Account.Name + ": " + ev.Unlock.Name + " (" + ev.Game.Name + ")")
	}

	for _, c := range res.Completions {
		if err := lim.Wait(ctx); err != nil {
			st.Dropped = total - st.Sent - st.Failed
			return st
		}
		caption := RenderCompletion(c)
		if err := s.send(ctx, cfg.CompletionTarget, c.Game.IconURL, caption, opts); err != nil {
			st.Failed++
			s.noteFailure()
			s.log.Warn("completion notification failed",
				logx.String("account", c.Account.Name),
				logx.String("game", c.Game.Name),
				logx.Err(err))
			continue
		}
		st.Sent++
		s.appendHistory(c.Account.Name + ": completed " + c.Game.Name)
	}

	return st
}

func (s *Service) send(ctx context.Context, to kit.ChatTarget, iconURL, caption string, opts *kit.SendOptions) error {
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := s.adapter.SendPhoto(sctx, to, iconURL, caption, opts)
	return err
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.totalSent++
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}

func (s *Service) noteFailure() {
	s.hmu.Lock()
	s.totalFail++
	s.hmu.Unlock()
}

// Snapshot returns recent history plus lifetime counters.
func (s *Service) Snapshot() (items []HistoryItem, sent, failed uint64) {
	s.hmu.Lock()
	items = append([]HistoryItem(nil), s.history...)
	sent, failed = s.totalSent, s.totalFail
	s.hmu.Unlock()
	return items, sent, failed
}
