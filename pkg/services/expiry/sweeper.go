// Package expiry moves stale pending rows to terminal states on a ticker.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/repository"
)

// StaleMarker takes silent attendees offline.
type StaleMarker interface {
	MarkStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Report counts what one sweep changed.
type Report struct {
	Suggestions int64 `json:"suggestions"`
	Requests    int64 `json:"requests"`
	Connections int64 `json:"connections"`
	Presence    int   `json:"presence"`
}

func (r Report) Total() int64 {
	return r.Suggestions + r.Requests + r.Connections + int64(r.Presence)
}

type Sweeper struct {
	matches     repository.MatchRepository
	connections repository.ConnectionRepository
	presence    StaleMarker
	staleAfter  time.Duration
	interval    time.Duration
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(
	matches repository.MatchRepository,
	connections repository.ConnectionRepository,
	presence StaleMarker,
	staleAfter, interval time.Duration,
	m *metrics.Metrics,
	log *zap.Logger,
) *Sweeper {
	return &Sweeper{
		matches:     matches,
		connections: connections,
		presence:    presence,
		staleAfter:  staleAfter,
		interval:    interval,
		metrics:     metrics.OrNew(m),
		log:         logger.OrNamed(log, "expiry"),
		now:         func() time.Time { return time.Now().UTC() },
		done:        make(chan struct{}),
	}
}

// RunOnce performs a single sweep. Each step runs even if an earlier one fails.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	now := s.now()
	var (
		rep  Report
		errs []error
		err  error
	)

	if rep.Suggestions, err = s.matches.ExpirePendingSuggestions(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire suggestions: %w", err))
	}
	if rep.Requests, err = s.matches.ExpireRequests(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire match requests: %w", err))
	}
	if rep.Connections, err = s.connections.ExpirePending(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire connection requests: %w", err))
	}
	if s.presence != nil && s.staleAfter > 0 {
		if rep.Presence, err = s.presence.MarkStale(ctx, now.Add(-s.staleAfter)); err != nil {
			errs = append(errs, fmt.Errorf("mark stale presence: %w", err))
		}
	}

	s.metrics.Expirations.WithLabelValues("suggestion").Add(float64(rep.Suggestions))
	s.metrics.Expirations.WithLabelValues("match_request").Add(float64(rep.Requests))
	s.metrics.Expirations.WithLabelValues("connection_request").Add(float64(rep.Connections))
	s.metrics.Expirations.WithLabelValues("presence").Add(float64(rep.Presence))

	if rep.Total() > 0 {
		s.log.Info("expiry sweep",
			zap.Int64("suggestions", rep.Suggestions),
			zap.Int64("requests", rep.Requests),
			zap.Int64("connections", rep.Connections),
			zap.Int("presence", rep.Presence))
	}
	return rep, errors.Join(errs...)
}

// Start runs RunOnce every interval until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.log.Error("expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
