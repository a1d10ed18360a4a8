package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/vitalone/vitalsync/internal/infrastructure/logging"
	"github.com/vitalone/vitalsync/internal/source"
)

// Scheduler periodically syncs the whole fleet. After a cycle in which
// no source produced new records it backs off to the idle interval, and
// returns to the active interval as soon as a cycle moves data again.
type Scheduler struct {
	service      *Service
	interval     time.Duration
	idleInterval time.Duration
	log          *logging.Logger

	mu      stdsync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates a scheduler around the given service.
func NewScheduler(service *Service, interval, idleInterval time.Duration, logger *logging.Logger) *Scheduler {
	if idleInterval < interval {
		idleInterval = interval
	}
	return &Scheduler{
		service:      service,
		interval:     interval,
		idleInterval: idleInterval,
		log:          logger,
	}
}

// Start launches the periodic loop. The first cycle runs after one
// interval, not immediately, so startup stays fast. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)
	s.log.Info("sync scheduler started",
		"interval", s.interval.String(),
		"idle_interval", s.idleInterval.String())
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.log.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	wait := s.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		results, err := s.service.SyncAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("scheduled sync cycle failed", "error", err)
			timer.Reset(s.interval)
			continue
		}

		wait = s.nextWait(results)
		timer.Reset(wait)
	}
}

// nextWait picks the delay before the next cycle: idle when the fleet
// produced nothing new, active otherwise.
func (s *Scheduler) nextWait(results []Result) time.Duration {
	moved := false
	for _, r := range results {
		if r.Log != nil && r.Log.RecordsProcessed > 0 && r.Log.Status != source.StatusFailed {
			moved = true
			break
		}
	}
	if moved {
		return s.interval
	}
	return s.idleInterval
}
