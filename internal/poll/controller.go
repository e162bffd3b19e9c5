// Package poll drives a bounded loop around the provider job client,
// translating queue states into one terminal outcome per job.
package poll

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"forge/internal/domain"
	"forge/internal/infra"
	"forge/internal/provider"
)

// Fetcher is the slice of the provider client the controller needs.
type Fetcher interface {
	FetchStatus(ctx context.Context, requestID string) ([]byte, error)
	FetchResult(ctx context.Context, requestID string) ([]byte, error)
}

// State is a terminal polling outcome.
type State string

const (
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
	StateTimedOut State = "TIMED_OUT"
)

// Outcome carries the terminal state plus the normalized result or the
// error that ended the loop.
type Outcome struct {
	State  State
	Result *domain.JobResult
	Err    error
}

// Profile sets the poll cadence and wall-clock ceiling for one job type.
// Provider latency differs by an order of magnitude across types, so the
// ceilings do too.
type Profile struct {
	Interval time.Duration
	Ceiling  time.Duration
}

var profiles = map[domain.JobType]Profile{
	domain.JobTypeMusic:   {Interval: 2 * time.Second, Ceiling: 60 * time.Second},
	domain.JobTypeImage:   {Interval: 3 * time.Second, Ceiling: 2 * time.Minute},
	domain.JobTypeModel3D: {Interval: 5 * time.Second, Ceiling: 7 * time.Minute},
	domain.JobTypeVideo:   {Interval: 5 * time.Second, Ceiling: 10 * time.Minute},
}

// ProfileFor returns the poll profile for a job type.
func ProfileFor(t domain.JobType) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return Profile{Interval: 5 * time.Second, Ceiling: 5 * time.Minute}
}

// Consecutive fetch errors tolerated before the loop gives up.
const defaultMaxFetchErrors = 5

// Controller runs the submit-side state machine: SUBMITTED until one of
// DONE, FAILED, TIMED_OUT.
type Controller struct {
	fetcher        Fetcher
	logger         infra.Logger
	sleep          func(ctx context.Context, d time.Duration) error
	maxFetchErrors int
}

// New creates a Controller with the default context-aware sleeper.
func New(fetcher Fetcher, logger infra.Logger) *Controller {
	return &Controller{
		fetcher:        fetcher,
		logger:         logger,
		sleep:          sleepContext,
		maxFetchErrors: defaultMaxFetchErrors,
	}
}

// Await polls until the job reaches a terminal state or the profile ceiling
// elapses. Context cancellation is reported as TIMED_OUT: the provider job
// keeps running server-side, so the reservation must stand and the request id
// stays re-pollable.
func (c *Controller) Await(ctx context.Context, requestID string, profile Profile, onProgress func(domain.JobStatus)) Outcome {
	interval := profile.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	attempts := int(profile.Ceiling / interval)
	if attempts < 1 {
		attempts = 1
	}

	consecutiveErrs := 0
	for attempt := 0; attempt < attempts; attempt++ {
		payload, err := c.fetcher.FetchStatus(ctx, requestID)
		if err != nil {
			consecutiveErrs++
			c.logger.Warn().Err(err).Str("request_id", requestID).Int("consecutive", consecutiveErrs).Msg("poll: status fetch failed")
			if consecutiveErrs >= c.maxFetchErrors {
				return Outcome{State: StateFailed, Err: fmt.Errorf("poll: %d consecutive fetch errors: %w", consecutiveErrs, err)}
			}
			if attempt == attempts-1 {
				break
			}
			if serr := c.sleep(ctx, jittered(interval)); serr != nil {
				return Outcome{State: StateTimedOut, Err: serr}
			}
			continue
		}
		consecutiveErrs = 0

		// Some responses embed the finished artifact directly in the status
		// payload; honor that and skip the result fetch entirely.
		if result, ok := provider.ExtractResult(payload); ok {
			return Outcome{State: StateDone, Result: result}
		}

		raw, _ := provider.ExtractStatus(payload)
		switch provider.NormalizeStatus(raw) {
		case domain.JobStatusQueued:
			if onProgress != nil {
				onProgress(domain.JobStatusQueued)
			}
		case domain.JobStatusRunning:
			if onProgress != nil {
				onProgress(domain.JobStatusRunning)
			}
		case domain.JobStatusCompleted:
			return c.fetchFinalResult(ctx, requestID)
		case domain.JobStatusFailed:
			msg := provider.ExtractError(payload)
			if msg == "" {
				msg = raw
			}
			return Outcome{State: StateFailed, Err: fmt.Errorf("poll: %w: %s", domain.ErrProviderFailure, msg)}
		}

		// No sleep after the last attempt; single-probe callers in
		// particular must return immediately.
		if attempt == attempts-1 {
			break
		}
		if serr := c.sleep(ctx, jittered(interval)); serr != nil {
			return Outcome{State: StateTimedOut, Err: serr}
		}
	}
	return Outcome{State: StateTimedOut, Err: fmt.Errorf("poll: no terminal state within %s", profile.Ceiling)}
}

// fetchFinalResult resolves a "completed" status into artifacts. A completed
// job with no extractable artifact is a provider inconsistency and counts as
// failure, never a silent retry.
func (c *Controller) fetchFinalResult(ctx context.Context, requestID string) Outcome {
	payload, err := c.fetcher.FetchResult(ctx, requestID)
	if err != nil {
		return Outcome{State: StateFailed, Err: fmt.Errorf("poll: fetch result: %w", err)}
	}
	result, ok := provider.ExtractResult(payload)
	if !ok {
		return Outcome{State: StateFailed, Err: domain.ErrResultMissing}
	}
	return Outcome{State: StateDone, Result: result}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jittered spreads poll ticks by up to 20% so many concurrent jobs do not
// hammer the provider in lockstep.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := time.Duration(rand.Int63n(int64(d) / 5))
	return d - d/10 + spread
}
