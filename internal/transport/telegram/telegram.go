package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "trophybot/internal/transport"
	logx "trophybot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges the transport contract onto a Telegram bot.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool
	done    chan struct{}

	// droppedUpdates counts inbound updates dropped because the consumer was
	// slower than the poll loop; logged on stop to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		up := kit.Update{
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
			},
		}
		a.sendUpdate(up)
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.done = make(chan struct{})
	done := a.done
	a.runMu.Unlock()

	// Stop telebot when the run context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			a.bot.Stop()
		case <-done:
		}
	}()

	go func() {
		a.log.Info("polling started")
		// Start blocks until Stop() is called.
		a.bot.Start()
		a.log.Info("polling stopped")
		close(done)
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	done := a.done
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn("inbound updates were dropped (consumer slow)", logx.Uint64("count", n))
	}

	// telebot Stop is expected to be fast; run it async just in case.
	go a.bot.Stop()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop timed out", logx.Err(ctx.Err()))
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if strings.TrimSpace(text) == "" {
		return kit.MessageRef{}, errors.New("empty message")
	}
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if strings.TrimSpace(photoURL) == "" {
		return a.SendText(ctx, to, caption, opt)
	}
	photo := &tele.Photo{File: tele.FromURL(photoURL), Caption: caption}
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), photo, sendOptions(to, opt))
	if err != nil {
		// Telegram rejects some icon URLs (dead CDN entries, size limits).
		// The notification still matters more than the thumbnail.
		a.log.Debug("photo send failed; falling back to text", logx.Err(err))
		return a.SendText(ctx, to, caption, opt)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
	}
	return so
}
