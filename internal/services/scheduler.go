package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retainer deletes telemetry older than a cutoff.
type Retainer interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (events, sessions int64, err error)
}

// RoomPruner drops rooms nobody joined.
type RoomPruner interface {
	PruneIdle(maxAge time.Duration) int
}

// SchedulerConfig sets how often the sweep runs and what it removes.
type SchedulerConfig struct {
	Interval        time.Duration
	Retention       time.Duration
	RoomIdleTimeout time.Duration
}

// Scheduler periodically enforces telemetry retention and clears idle rooms.
type Scheduler struct {
	log      *zap.Logger
	cfg      SchedulerConfig
	retainer Retainer
	rooms    RoomPruner
	now      func() time.Time
}

// NewScheduler builds a sweeper. Either retainer or rooms may be nil.
func NewScheduler(log *zap.Logger, cfg SchedulerConfig, retainer Retainer, rooms RoomPruner) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		log:      log,
		cfg:      cfg,
		retainer: retainer,
		rooms:    rooms,
		now:      time.Now,
	}
}

// Start runs the sweep in a goroutine until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Starting retention scheduler...", zap.Duration("interval", s.cfg.Interval), zap.Duration("retention", s.cfg.Retention))
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.rooms != nil && s.cfg.RoomIdleTimeout > 0 {
		if n := s.rooms.PruneIdle(s.cfg.RoomIdleTimeout); n > 0 {
			s.log.Info("Pruned idle rooms", zap.Int("rooms", n))
		}
	}

	if s.retainer == nil || s.cfg.Retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.Retention)
	events, sessions, err := s.retainer.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("Retention sweep failed", zap.Error(err))
		return
	}
	s.log.Debug("Retention sweep complete", zap.Time("cutoff", cutoff), zap.Int64("events", events), zap.Int64("sessions", sessions))
}
