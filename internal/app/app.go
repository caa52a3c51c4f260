package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trophybot/internal/config"
	"trophybot/internal/enrich"
	"trophybot/internal/notifier"
	"trophybot/internal/ops"
	"trophybot/internal/poller"
	"trophybot/internal/steam"
	"trophybot/internal/storage"
	"trophybot/internal/tracker"
	kit "trophybot/internal/transport"
	telegram "trophybot/internal/transport/telegram"
	logx "trophybot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter  kit.Adapter
	api      *steam.Client
	store    storage.Store
	enricher *enrich.Service
	track    *tracker.CompletionTracker
	notif    *notifier.Service
	poll     *poller.Service
	opsSrv   *ops.Server

	// runner and creds are rebuilt on config reload; cycleGate keeps cycle
	// runs single-flight across the cron trigger and manual /check.
	runnerMu  sync.Mutex
	runner    *tracker.Runner
	creds     []tracker.Credential
	owners    []int64
	cycleGate sync.Mutex

	statusMu  sync.Mutex
	lastCycle CycleStatus
	profiles  []steam.Account
	startedAt time.Time

	updates chan kit.Update
}

// CycleStatus summarizes the most recent polling cycle for /status and ops.
type CycleStatus struct {
	At            time.Time     `json:"at"`
	Took          time.Duration `json:"took_ns"`
	Accounts      int           `json:"accounts"`
	Events        int           `json:"events"`
	Completions   int           `json:"completions"`
	Sent          int           `json:"sent"`
	Failed        int           `json:"failed"`
	FailedItems   int           `json:"failed_items"`
	AccountErrors int           `json:"account_errors"`
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.TelegramToken(),
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	reqTimeout, err := config.ParseDurationOrDefault("steam.request_timeout", cfg.Steam.RequestTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	api := steam.New(steam.Config{
		BaseURL:    cfg.Steam.BaseURL,
		Timeout:    reqTimeout,
		RatePerSec: cfg.Steam.RatePerSec,
	}, log.With(logx.String("comp", "steam")))

	var store storage.Store
	if cfg.Storage != nil {
		schemaTTL, err := config.ParseDurationField("storage.schema_ttl", cfg.Storage.SchemaTTL)
		if err != nil {
			return nil, err
		}
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			SchemaTTL:   schemaTTL,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	var enricher *enrich.Service
	if cfg.Enrich != nil && cfg.Enrich.Enabled {
		timeout, err := config.ParseDurationField("enrich.timeout", cfg.Enrich.Timeout)
		if err != nil {
			return nil, err
		}
		enricher = enrich.New(enrich.Config{Enabled: true, Timeout: timeout}, api,
			log.With(logx.String("comp", "enrich")))
		if store != nil {
			enricher.SetCache(store)
		}
	}

	track := tracker.NewCompletionTracker()

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logs,
		adapter:   adapter,
		api:       api,
		store:     store,
		enricher:  enricher,
		track:     track,
		updates:   make(chan kit.Update, 64),
		startedAt: time.Now(),
	}

	if err := a.buildPipeline(cfg); err != nil {
		return nil, err
	}

	interval, _ := config.ParseDurationField("tracker.interval", cfg.Tracker.Interval)
	a.poll = poller.New(interval, a.cycleJob, log.With(logx.String("comp", "poller")))

	if cfg.Ops != nil && cfg.Ops.Enabled {
		a.opsSrv = ops.New(ops.Config{Addr: cfg.Ops.Addr}, a.statusSnapshot,
			log.With(logx.String("comp", "ops")))
	}

	return a, nil
}

// buildPipeline (re)builds the cycle runner and notifier settings from a
// validated config snapshot. The completion tracker survives rebuilds.
func (a *App) buildPipeline(cfg *config.Config) error {
	window, err := config.ParseDurationField("tracker.window", cfg.Tracker.Window)
	if err != nil {
		return err
	}
	minDelay, err := config.ParseDurationOrDefault("notifier.min_delay", cfg.Notifier.MinDelay, time.Second)
	if err != nil {
		return err
	}

	runner := tracker.NewRunner(tracker.Config{
		Window:      window,
		ItemWorkers: cfg.Tracker.ItemWorkers,
	}, a.api, a.track, a.log.With(logx.String("comp", "tracker")))
	if a.store != nil {
		runner.SetSchemaCache(a.store)
	}
	if a.enricher != nil {
		runner.SetEnricher(a.enricher)
	}

	creds := make([]tracker.Credential, 0, len(cfg.Steam.Accounts))
	for _, acc := range cfg.Steam.Accounts {
		creds = append(creds, tracker.Credential{
			SteamID: acc.SteamID,
			APIKey:  cfg.SteamKeyFor(acc),
		})
	}

	notifCfg := notifier.Config{
		MinDelay: minDelay,
		Target: kit.ChatTarget{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		},
		CompletionTarget: kit.ChatTarget{
			ChatID:   cfg.Telegram.CompletionChatID,
			ThreadID: cfg.Telegram.ThreadID,
		},
	}

	a.runnerMu.Lock()
	a.runner = runner
	a.creds = creds
	a.owners = append([]int64(nil), cfg.Telegram.OwnerUserIDs...)
	a.runnerMu.Unlock()

	if a.notif == nil {
		a.notif = notifier.New(notifCfg, a.adapter, a.log.With(logx.String("comp", "notifier")))
	} else {
		a.notif.Apply(notifCfg)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx,
		WithLogger(a.log),
		WithCancelOnError(false),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		a.commandLoop(c)
		return nil
	})

	// Config hot reload fan-out.
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if err := a.poll.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.opsSrv != nil {
		if err := a.opsSrv.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.log.Info("started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if err := a.buildPipeline(cfg); err != nil {
		a.log.Warn("config apply failed", logx.Err(err))
		return
	}

	if interval, err := config.ParseDurationField("tracker.interval", cfg.Tracker.Interval); err == nil {
		if err := a.poll.Apply(interval); err != nil {
			a.log.Warn("interval apply failed", logx.Err(err))
		}
	}

	// Token, storage driver, and ops address changes need a restart; the
	// rest is applied live.
	a.log.Info("config reloaded")
}

// cycleJob is what the poller triggers. The gate keeps the cron trigger and
// the manual /check from overlapping.
func (a *App) cycleJob(ctx context.Context) {
	if !a.cycleGate.TryLock() {
		a.log.Debug("cycle already running; skipping trigger")
		return
	}
	defer a.cycleGate.Unlock()
	a.runCycle(ctx)
}

func (a *App) runCycle(ctx context.Context) {
	a.runnerMu.Lock()
	runner := a.runner
	creds := append([]tracker.Credential(nil), a.creds...)
	a.runnerMu.Unlock()

	a.log.Info("searching for new achievements", logx.Int("accounts", len(creds)))
	res := runner.RunCycle(ctx, creds)

	if len(res.Events) > 0 || len(res.Completions) > 0 {
		a.log.Info("cycle produced notifications",
			logx.Int("events", len(res.Events)),
			logx.Int("completions", len(res.Completions)))
	}

	stats := a.notif.Dispatch(ctx, res)
	if stats.Dropped > 0 {
		a.log.Warn("dispatch interrupted", logx.Int("dropped", stats.Dropped))
	}

	a.statusMu.Lock()
	a.lastCycle = CycleStatus{
		At:            res.StartedAt,
		Took:          res.FinishedAt.Sub(res.StartedAt),
		Accounts:      res.Accounts,
		Events:        len(res.Events),
		Completions:   len(res.Completions),
		Sent:          stats.Sent,
		Failed:        stats.Failed,
		FailedItems:   res.FailedItems,
		AccountErrors: res.AccountErrors,
	}
	a.profiles = append(a.profiles[:0], res.Profiles...)
	a.statusMu.Unlock()
}

// tryManualCycle starts a cycle in the background unless one is running.
func (a *App) tryManualCycle() bool {
	if !a.cycleGate.TryLock() {
		return false
	}
	a.sup.Go0("cycle.manual", func(c context.Context) {
		defer a.cycleGate.Unlock()
		a.runCycle(c)
	})
	return true
}

type profileInfo struct {
	SteamID string `json:"steam_id"`
	Name    string `json:"name"`
	Age     string `json:"age,omitempty"`
}

func (a *App) statusSnapshot() any {
	a.statusMu.Lock()
	last := a.lastCycle
	profiles := append([]steam.Account(nil), a.profiles...)
	a.statusMu.Unlock()

	now := time.Now()
	infos := make([]profileInfo, 0, len(profiles))
	for _, p := range profiles {
		infos = append(infos, profileInfo{
			SteamID: p.SteamID,
			Name:    p.Name,
			Age:     p.Age(now),
		})
	}

	_, sent, failed := a.notif.Snapshot()
	return map[string]any{
		"uptime_s":            int64(time.Since(a.startedAt).Seconds()),
		"last_cycle":          last,
		"profiles":            infos,
		"completions_tracked": a.track.Len(),
		"total_sent":          sent,
		"total_failed":        failed,
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Bound each shutdown step so one component can't stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context)) {
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(sctx)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached", logx.String("name", name))
		}
	}

	step("poller", 5*time.Second, func(c context.Context) { a.poll.Stop(c) })
	if a.opsSrv != nil {
		step("ops", 2*time.Second, func(c context.Context) { a.opsSrv.Stop(c) })
	}

	a.sup.Cancel()
	step("adapter", 3*time.Second, func(c context.Context) { _ = a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
