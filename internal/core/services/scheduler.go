package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/docmind/internal/core/ports/driving"
	"github.com/custodia-labs/docmind/internal/logger"
)

// RebuildResult records one scheduled rebuild.
type RebuildResult struct {
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// Scheduler runs RebuildAll on a cron schedule.
type Scheduler struct {
	spec  string
	index driving.MemoryIndex

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	stopCh  chan struct{}
	last    *RebuildResult

	// rebuilding serialises runs; a tick that fires while a rebuild is
	// still in flight is skipped.
	rebuilding sync.Mutex
}

// NewScheduler creates a scheduler for a five-field cron expression.
func NewScheduler(spec string, index driving.MemoryIndex) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse rebuild schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, index: index}, nil
}

// Start begins scheduling. This method blocks until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule rebuild: %w", err)
	}
	s.cron = c
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	logger.Info("Scheduled memory index rebuild: %s", s.spec)
	c.Start()

	select {
	case <-ctx.Done():
		_ = s.Stop()
		return ctx.Err()
	case <-stopCh:
		return nil
	}
}

// Stop gracefully shuts down the scheduler, waiting for a running rebuild.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	close(s.stopCh)
	s.mu.Unlock()

	<-c.Stop().Done()
	return nil
}

// RunOnce performs one rebuild unless another is in flight.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.rebuilding.TryLock() {
		logger.Debug("Scheduled rebuild skipped: previous run still in progress")
		return
	}
	defer s.rebuilding.Unlock()

	result := &RebuildResult{StartedAt: time.Now()}
	result.Err = s.index.RebuildAll(ctx)
	result.EndedAt = time.Now()
	if result.Err != nil {
		logger.Warn("Scheduled rebuild failed: %v", result.Err)
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
}

// LastResult returns the most recent rebuild result, or nil before the first run.
func (s *Scheduler) LastResult() *RebuildResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}
