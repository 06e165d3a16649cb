// Package scheduler internal/infrastructure/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/valutatrade/parser-service/internal/application/service"
	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
)

// Updater runs one cache refresh.
type Updater interface {
	Update(ctx context.Context) (service.UpdateReport, error)
}

// Scheduler triggers periodic cache updates until its context is
// cancelled.
type Scheduler struct {
	updater  Updater
	interval time.Duration
	logger   logger.Logger
}

// NewScheduler creates a scheduler with the given update interval.
func NewScheduler(updater Updater, interval time.Duration, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Scheduler{updater: updater, interval: interval, logger: log}
}

// Run blocks, updating on every tick, and returns when ctx is cancelled.
// An update already in flight just skips the tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", nil)
			return
		case <-ticker.C:
			report, err := s.updater.Update(ctx)
			if err != nil {
				if errors.Is(err, entity.ErrUpdateInProgress) {
					s.logger.Debug("Skipping tick, update already running", nil)
					continue
				}
				s.logger.Error("Scheduled update failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			s.logger.Info("Scheduled update completed", map[string]interface{}{
				"fetched":     report.Fetched,
				"merged":      report.Merged,
				"version":     report.Version,
				"degraded":    report.Degraded,
				"duration_ms": report.Duration.Milliseconds(),
			})
		}
	}
}
