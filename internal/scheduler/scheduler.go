// Package scheduler runs the periodic maintenance tasks.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HistoryRefresher drops and reloads cached histories and prunes persisted ones
type HistoryRefresher interface {
	Purge(ctx context.Context) error
	Prune(ctx context.Context) (int64, error)
	Prewarm(ctx context.Context) int
}

// SessionSweeper removes idle sessions
type SessionSweeper interface {
	Sweep() int
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	History  HistoryRefresher
	Sessions SessionSweeper
	Prewarm  bool
	Ctx      context.Context
	logger   *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, hist HistoryRefresher, sessions SessionSweeper, prewarm bool, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		History:  hist,
		Sessions: sessions,
		Prewarm:  prewarm,
		Ctx:      ctx,
		logger:   logger,
	}
}

// RegisterAll registers the daily refresh and the session sweep.
func (s *Scheduler) RegisterAll(refreshCron, sweepCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	if s.Sessions != nil && sweepCron != "" {
		if _, err := s.Cron.AddFunc(sweepCron, s.sweepTask); err != nil {
			return fmt.Errorf("register sweep task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunRefreshNow executes the refresh task immediately
func (s *Scheduler) RunRefreshNow() {
	s.refreshTask()
}

func (s *Scheduler) refreshTask() {
	if err := s.History.Purge(s.Ctx); err != nil {
		s.logger.Error("history purge failed", zap.Error(err))
		return
	}
	if n, err := s.History.Prune(s.Ctx); err != nil {
		s.logger.Warn("history prune failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("pruned persisted history", zap.Int64("rows", n))
	}
	if !s.Prewarm {
		s.logger.Info("history cache purged")
		return
	}
	loaded := s.History.Prewarm(s.Ctx)
	s.logger.Info("history cache refreshed", zap.Int("loaded", loaded))
}

func (s *Scheduler) sweepTask() {
	if n := s.Sessions.Sweep(); n > 0 {
		s.logger.Info("expired sessions removed", zap.Int("count", n))
	}
}
