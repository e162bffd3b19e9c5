// Package sweeper resolves reservations left open by timed-out jobs. A job
// past its polling ceiling holds credits without a terminal outcome; the
// sweep re-polls the provider and either settles the completion or refunds.
// Refund and settlement are both idempotent, so concurrent sweepers and a
// racing client re-poll cannot double-resolve.
package sweeper

import (
	"context"
	"time"

	"forge/internal/domain"
	"forge/internal/infra"
	"forge/internal/orchestrator"
)

// Resolver re-polls one request and settles its reservation.
type Resolver interface {
	Resolve(ctx context.Context, requestID string) (*orchestrator.Outcome, error)
}

// Sweeper periodically scans for stale reservations.
type Sweeper struct {
	reservations domain.ReservationStore
	resolver     Resolver
	minAge       time.Duration
	logger       infra.Logger
}

// New wires a Sweeper. minAge keeps the sweep away from jobs a client is
// still actively polling; it should exceed the longest job-type ceiling.
func New(reservations domain.ReservationStore, resolver Resolver, minAge time.Duration, logger infra.Logger) *Sweeper {
	if minAge <= 0 {
		minAge = 20 * time.Minute
	}
	return &Sweeper{reservations: reservations, resolver: resolver, minAge: minAge, logger: logger}
}

// SweepOnce resolves every stale reservation once and reports how many were
// settled and how many remain in flight.
func (s *Sweeper) SweepOnce(ctx context.Context) (settled, pending int, err error) {
	stale, err := s.reservations.ListStale(ctx, time.Now().Add(-s.minAge))
	if err != nil {
		return 0, 0, err
	}
	for _, res := range stale {
		outcome, err := s.resolver.Resolve(ctx, res.RequestID)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", res.RequestID).Msg("sweep: resolve failed")
			continue
		}
		if outcome.Pending {
			pending++
			continue
		}
		settled++
		s.logger.Info().
			Str("request_id", res.RequestID).
			Bool("completed", outcome.Success).
			Int64("refunded", outcome.CreditsRefunded).
			Msg("sweep: reservation settled")
	}
	return settled, pending, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if settled, pending, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep: pass failed")
			} else if settled > 0 || pending > 0 {
				s.logger.Info().Int("settled", settled).Int("pending", pending).Msg("sweep: pass complete")
			}
		}
	}
}
