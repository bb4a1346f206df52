// refresh/scheduler.go
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/dilemmaview/decode"
	"github.com/wfunc/dilemmaview/ledger"
	"github.com/wfunc/dilemmaview/logger"
	"github.com/wfunc/dilemmaview/room"
	"github.com/wfunc/dilemmaview/session"
)

// Reason 触发刷新的原因
type Reason string

const (
	ReasonStartup  Reason = "startup"
	ReasonIdentity Reason = "identity"
	ReasonAction   Reason = "action"
	ReasonManual   Reason = "manual"
)

// QueryError 单个查询失败
type QueryError struct {
	Slot Slot
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Slot, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Decode reports whether the failure was a decode error rather than a
// failed remote call.
func (e *QueryError) Decode() bool {
	var de *decode.DecodeError
	return errors.As(e.Err, &de)
}

// Observer receives refresh measurements.
type Observer interface {
	ObserveRefresh(reason string, duration time.Duration, failures int)
	IncQueryFailure(slot string, decodeFailure bool)
}

type nopObserver struct{}

func (nopObserver) ObserveRefresh(string, time.Duration, int) {}
func (nopObserver) IncQueryFailure(string, bool)              {}

// Option 调度器配置
type Option func(*Scheduler)

// WithQueryTimeout bounds every individual read.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithObserver records refresh metrics.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithStartGeneration continues numbering after n, so generations stay
// increasing across restarts.
func WithStartGeneration(n uint64) Option {
	return func(s *Scheduler) { s.generation.Store(n) }
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler re-runs the four ledger reads. It reacts to identity changes and
// explicit triggers only; an in-flight refresh is never cancelled.
type Scheduler struct {
	reader     ledger.Reader
	cache      *Cache
	account    *session.Account
	timeout    time.Duration
	observer   Observer
	log        *zap.SugaredLogger
	generation atomic.Uint64
	triggers   chan Reason
	listeners  []func(Snapshot)
	listenMu   sync.RWMutex
	inflight   sync.WaitGroup
}

func NewScheduler(reader ledger.Reader, cache *Cache, account *session.Account, opts ...Option) *Scheduler {
	s := &Scheduler{
		reader:   reader,
		cache:    cache,
		account:  account,
		observer: nopObserver{},
		log:      logger.Log,
		triggers: make(chan Reason, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the cache the scheduler writes to.
func (s *Scheduler) Cache() *Cache {
	return s.cache
}

// OnPublish registers fn to receive every published snapshot.
func (s *Scheduler) OnPublish(fn func(Snapshot)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scheduler) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Refresh issues the four reads concurrently and publishes the settled batch.
// The returned error combines every failed slot; the snapshot is returned
// either way.
func (s *Scheduler) Refresh(ctx context.Context, reason Reason) (Snapshot, error) {
	gen := s.generation.Add(1)
	start := time.Now()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	record := func(slot Slot, err error) {
		if err == nil {
			return
		}
		qe := &QueryError{Slot: slot, Err: err}
		s.observer.IncQueryFailure(string(slot), qe.Decode())
		mu.Lock()
		errs = multierr.Append(errs, qe)
		mu.Unlock()
	}

	g.Go(func() error {
		qctx, cancel := s.queryContext(ctx)
		defer cancel()
		v, err := s.reader.PlayersByRooms(qctx)
		s.cache.StorePlayersByRooms(gen, v, err)
		record(SlotPlayersByRooms, err)
		return nil
	})
	g.Go(func() error {
		qctx, cancel := s.queryContext(ctx)
		defer cancel()
		v, err := s.reader.Ranking(qctx)
		s.cache.StoreRanking(gen, v, err)
		record(SlotRanking, err)
		return nil
	})
	g.Go(func() error {
		qctx, cancel := s.queryContext(ctx)
		defer cancel()
		v, err := s.reader.Players(qctx)
		s.cache.StorePlayers(gen, v, err)
		record(SlotPlayers, err)
		return nil
	})
	g.Go(func() error {
		qctx, cancel := s.queryContext(ctx)
		defer cancel()
		v, err := s.reader.ContractBalance(qctx)
		s.cache.StoreContractBalance(gen, v, err)
		record(SlotContractBalance, err)
		return nil
	})
	_ = g.Wait()

	failures := len(multierr.Errors(errs))
	s.observer.ObserveRefresh(string(reason), time.Since(start), failures)

	snap, published := s.cache.Publish(gen)
	if failures > 0 {
		s.log.Warnw("refresh completed with failures",
			"reason", reason, "generation", gen, "failures", failures, "error", errs)
	} else {
		s.log.Debugw("refresh completed", "reason", reason, "generation", gen)
	}
	if published {
		if snap.PlayersByRooms.Valid {
			if over := room.Aggregate(snap.PlayersByRooms.Value).Overfull(); len(over) > 0 {
				s.log.Warnw("rooms exceed capacity", "generation", gen, "rooms", over)
			}
		}
		s.notify(snap)
	}
	return snap, errs
}

func (s *Scheduler) notify(snap Snapshot) {
	s.listenMu.RLock()
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenMu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Trigger queues a refresh for Run to issue. Triggers beyond the queue depth
// are dropped with a warning; a queued refresh covers them.
func (s *Scheduler) Trigger(reason Reason) {
	select {
	case s.triggers <- reason:
	default:
		s.log.Warnw("refresh trigger dropped, queue full", "reason", reason)
	}
}

// Run issues a startup refresh, then reacts to identity changes and queued
// triggers until ctx is done. It waits for in-flight refreshes before
// returning.
func (s *Scheduler) Run(ctx context.Context) error {
	changes := s.account.Subscribe()
	defer s.inflight.Wait()

	s.spawn(ctx, ReasonStartup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change := <-changes:
			s.log.Infow("identity changed",
				"previous", change.Previous, "current", change.Current, "identified", change.Identified)
			s.spawn(ctx, ReasonIdentity)
		case reason := <-s.triggers:
			s.spawn(ctx, reason)
		}
	}
}

// spawn runs a refresh detached from ctx cancellation: once issued, the
// reads complete.
func (s *Scheduler) spawn(ctx context.Context, reason Reason) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.Refresh(context.WithoutCancel(ctx), reason)
	}()
}
