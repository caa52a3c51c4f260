// Package poller triggers polling cycles on a fixed interval.
//
// Cycles must never overlap: the cron chain skips a tick while the previous
// job (cycle plus its dispatch loop) is still running.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "trophybot/pkg/logx"
)

// Service wraps a single recurring job.
type Service struct {
	log logx.Logger
	job func(ctx context.Context)

	mu       sync.Mutex
	c        *cron.Cron
	entry    cron.EntryID
	interval time.Duration
	ctx      context.Context
}

func New(interval time.Duration, job func(ctx context.Context), log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, job: job, interval: interval}
}

// Start schedules the job. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("poller: interval must be > 0")
	}
	s.ctx = ctx

	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	id, err := c.AddFunc("@every "+s.interval.String(), func() {
		if s.ctx.Err() != nil {
			return
		}
		s.job(s.ctx)
	})
	if err != nil {
		return err
	}
	s.c = c
	s.entry = id
	c.Start()
	s.log.Info("polling scheduled", logx.Duration("interval", s.interval))
	return nil
}

// Apply reschedules with a new interval (config hot reload).
func (s *Service) Apply(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval <= 0 {
		return fmt.Errorf("poller: interval must be > 0")
	}
	if interval == s.interval {
		return nil
	}
	s.interval = interval
	if s.c == nil {
		return nil
	}
	s.c.Remove(s.entry)
	id, err := s.c.AddFunc("@every "+interval.String(), func() {
		if s.ctx.Err() != nil {
			return
		}
		s.job(s.ctx)
	})
	if err != nil {
		return err
	}
	s.entry = id
	s.log.Info("polling rescheduled", logx.Duration("interval", interval))
	return nil
}

// Stop halts scheduling and waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("poller stop timed out (job still running)")
	}
}

// cronLogger adapts the project logger onto cron's logging contract.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k := fmt.Sprint(kv[i])
		fields = append(fields, logx.Any(k, kv[i+1]))
	}
	return fields
}
