// Package cleanup runs the background retention sweeps: trace events older
// than the configured retention window and temp files left behind by the
// large-response pipeline.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shubhamnegi/agent-core/pkg/largeresponse"
	"github.com/Shubhamnegi/agent-core/pkg/storage"
)

// DefaultInterval is the period between sweep runs.
const DefaultInterval = 5 * time.Minute

// Service periodically deletes expired trace events and temp files.
type Service struct {
	events         storage.EventRepository
	tempFiles      *largeresponse.TempFileRegistry
	eventRetention time.Duration
	tempMaxAge     time.Duration
	interval       time.Duration

	done   chan struct{}
	logger *slog.Logger
}

func NewService(events storage.EventRepository, tempFiles *largeresponse.TempFileRegistry, eventRetention, tempMaxAge time.Duration) *Service {
	return &Service{
		events:         events,
		tempFiles:      tempFiles,
		eventRetention: eventRetention,
		tempMaxAge:     tempMaxAge,
		interval:       DefaultInterval,
		done:           make(chan struct{}),
		logger:         slog.Default().With("component", "cleanup"),
	}
}

// Start launches the sweep loop. It returns immediately; Stop shuts the loop
// down.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("cleanup service started",
		"interval", s.interval, "event_retention", s.eventRetention, "temp_max_age", s.tempMaxAge)
}

// Stop terminates the sweep loop.
func (s *Service) Stop() {
	close(s.done)
}

func (s *Service) runOnce(ctx context.Context) {
	if s.events != nil && s.eventRetention > 0 {
		cutoff := time.Now().UTC().Add(-s.eventRetention)
		deleted, err := s.events.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("event retention sweep failed", "error", err)
		} else if deleted > 0 {
			s.logger.Info("expired trace events deleted", "count", deleted, "cutoff", cutoff)
		}
	}
	if s.tempFiles != nil && s.tempMaxAge > 0 {
		removed := s.tempFiles.SweepOlderThan(s.tempMaxAge)
		if removed > 0 {
			s.logger.Info("stale temp files removed", "count", removed)
		}
	}
}
