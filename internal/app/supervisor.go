package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	logx "trophybot/pkg/logx"
)

// Supervisor manages named goroutines tied to a shared context:
// panic recovery, first-error capture, optional cancel-on-first-error,
// and timeout-aware waiting.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr error
	errMu    sync.Mutex

	wg sync.WaitGroup
}

type SupervisorOption func(*Supervisor)

func WithLogger(log logx.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first non-nil,
// non-cancellation error from any goroutine.
func WithCancelOnError(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...SupervisorOption) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for goroutines.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

func (s *Supervisor) setErr(err error) {
	s.errOnce.Do(func() {
		s.errMu.Lock()
		s.firstErr = err
		s.errMu.Unlock()
	})
}

func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s: %v", name, r)
				if !s.log.IsZero() {
					s.log.Error("goroutine panicked",
						logx.String("name", name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
				s.setErr(err)
				if s.cancelOnErr {
					s.cancel()
				}
			}
		}()

		err := fn(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(fmt.Errorf("%s: %w", name, err))
			if !s.log.IsZero() {
				s.log.Error("goroutine failed", logx.String("name", name), logx.Err(err))
			}
			if s.cancelOnErr {
				s.cancel()
			}
		}
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Wait blocks until every goroutine exits or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
