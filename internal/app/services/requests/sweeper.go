package requests

import (
	"context"
	"sync"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/internal/app/system"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

// Sweeper periodically closes open requests whose event date has passed. A
// request that nobody unlocks still leaves the marketplace once its date is
// gone.
type Sweeper struct {
	store    storage.RequestStore
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper constructs a sweeper. A non-positive interval falls back to one
// minute.
func NewSweeper(store storage.RequestStore, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("request-sweeper")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
	}
}

func (s *Sweeper) Name() string { return "request-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("request sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	expired, err := s.store.ListExpiredRequests(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("list expired requests failed")
		return
	}

	for _, r := range expired {
		if err := s.store.CloseRequest(ctx, r.ID); err != nil {
			s.log.WithError(err).Warnf("close expired request %s failed", r.ID)
			continue
		}
		s.log.WithField("request_id", r.ID).Info("expired request closed")
	}
}
