// Package tiered provides a Hot/Cold account store that puts a fast store
// (Redis, memory) in front of a durable one (Postgres, Firestore, ...).
//
// Grants always go to Cold, which stays the source of truth. Because
// has_lifetime_access only ever moves from false to true, a granted account
// read from Hot can never be stale; anything else is re-read from Cold.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory)
	Hot entitlement.WritableStore

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold entitlement.Store

	// AsyncMirror copies granted accounts into Hot on a background worker.
	// If false, the copy happens before GrantLifetimeAccess returns.
	AsyncMirror bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when a mirror write fails.
	AsyncErrorHandler func(error)
}

// Storage implements entitlement.Store over a Hot and a Cold store.
//   - GrantLifetimeAccess: Cold, then mirror matched accounts to Hot
//   - GetAccount: Hot if granted there, else Cold with read-repair
//   - Ping: Cold only
type Storage struct {
	hot  entitlement.WritableStore
	cold entitlement.Store
	conf Config

	group singleflight.Group

	syncQueue chan func() error
	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncMirror {
		s.startWorker()
	}

	return s, nil
}

// Close drains pending mirror writes and stops the worker.
func (s *Storage) Close() error {
	if s.conf.AsyncMirror {
		s.closeOnce.Do(func() {
			close(s.shutdown)
			s.wg.Wait()
		})
	}
	return nil
}

// startWorker runs the background mirror loop.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				s.report(job())
			case <-s.shutdown:
				for {
					select {
					case job := <-s.syncQueue:
						s.report(job())
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) report(err error) {
	if err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered mirror failed: %w", err))
	}
}

// GrantLifetimeAccess implements entitlement.Store. A Hot failure never
// fails the grant.
func (s *Storage) GrantLifetimeAccess(ctx context.Context, m entitlement.Match) (*entitlement.GrantResult, error) {
	res, err := s.cold.GrantLifetimeAccess(ctx, m)
	if err != nil {
		return nil, err
	}
	if len(res.AccountIDs) == 0 {
		return res, nil
	}

	ids := append([]string(nil), res.AccountIDs...)
	job := func() error {
		// Detached from the request so the mirror outlives a cancelled caller.
		return s.mirror(context.WithoutCancel(ctx), ids)
	}

	if !s.conf.AsyncMirror {
		s.report(job())
		return res, nil
	}

	select {
	case s.syncQueue <- job:
	default:
		s.report(errors.New("sync queue full, mirror dropped"))
	}
	return res, nil
}

func (s *Storage) mirror(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		acct, err := s.cold.GetAccount(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", id, err))
			continue
		}
		if err := s.hot.PutAccount(ctx, *acct); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// GetAccount implements entitlement.Store with a read-through strategy.
func (s *Storage) GetAccount(ctx context.Context, id string) (*entitlement.Account, error) {
	if acct, err := s.hot.GetAccount(ctx, id); err == nil && acct.HasLifetimeAccess {
		return acct, nil
	}

	// Concurrent misses for one account share a single Cold read and repair.
	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		acct, err := s.cold.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}

		// Read-repair; errors are non-critical
		_ = s.hot.PutAccount(ctx, *acct) //nolint:errcheck // Cache fill

		return acct, nil
	})
	if err != nil {
		return nil, err
	}
	acct := *v.(*entitlement.Account)
	return &acct, nil
}

// Ping implements entitlement.Store. Only Cold decides health.
func (s *Storage) Ping(ctx context.Context) error {
	return s.cold.Ping(ctx)
}

var _ entitlement.Store = (*Storage)(nil)
