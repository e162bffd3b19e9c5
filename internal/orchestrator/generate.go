// Package orchestrator composes the credit ledger, the provider job client
// and the polling controller into credit-guarded generation flows. Every exit
// path that yields no usable artifact refunds exactly the amount reserved;
// timeouts are the one deliberate exception, since the provider job may still
// complete and the reservation is resolved later by a re-poll or the sweep.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"forge/internal/domain"
	"forge/internal/infra"
	"forge/internal/poll"
)

// CreditLedger is the slice of the ledger the orchestrator needs.
type CreditLedger interface {
	Reserve(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error)
	Refund(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}

// Submitter submits one generation request and returns the provider request id.
type Submitter interface {
	Submit(ctx context.Context, endpoint string, params map[string]any) (string, error)
}

// Poller drives a submitted job to a terminal polling state.
type Poller interface {
	Await(ctx context.Context, requestID string, profile poll.Profile, onProgress func(domain.JobStatus)) poll.Outcome
}

// Default provider endpoint per job type.
var defaultEndpoints = map[domain.JobType]string{
	domain.JobTypeImage:   "/generate/image",
	domain.JobTypeVideo:   "/generate/video",
	domain.JobTypeMusic:   "/generate/music",
	domain.JobTypeModel3D: "/generate/model3d",
}

// Generator runs the single-job flow: reserve, submit, poll, settle.
type Generator struct {
	ledger       CreditLedger
	submitter    Submitter
	poller       Poller
	reservations domain.ReservationStore
	endpoints    map[domain.JobType]string
	logger       infra.Logger
}

// NewGenerator wires a Generator.
func NewGenerator(ledger CreditLedger, submitter Submitter, poller Poller, reservations domain.ReservationStore, logger infra.Logger) *Generator {
	return &Generator{
		ledger:       ledger,
		submitter:    submitter,
		poller:       poller,
		reservations: reservations,
		endpoints:    defaultEndpoints,
		logger:       logger,
	}
}

// GenerateRequest describes one generation job.
type GenerateRequest struct {
	AccountID  string
	JobType    domain.JobType
	Variant    string
	Params     map[string]any
	OnProgress func(domain.JobStatus)
}

// Outcome is the structured result every generation call resolves to. The
// plan and agent layers branch on this type only, never on raw transport
// errors. Pending marks a job that hit its polling ceiling: credits stay
// reserved and the request id can be re-polled.
type Outcome struct {
	Success          bool              `json:"success"`
	Pending          bool              `json:"pending,omitempty"`
	RequestID        string            `json:"request_id,omitempty"`
	Artifacts        []domain.Artifact `json:"artifacts,omitempty"`
	CreditsDeducted  int64             `json:"credits_deducted,omitempty"`
	CreditsRefunded  int64             `json:"credits_refunded,omitempty"`
	RemainingCredits int64             `json:"remaining_credits"`
	Error            string            `json:"error,omitempty"`
}

// Generate runs one job end to end. It returns an error only when nothing was
// reserved (unknown job type, insufficient credits, unknown account); once
// credits are reserved, every path resolves to an Outcome.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*Outcome, error) {
	if !domain.KnownJobType(req.JobType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedJobType, req.JobType)
	}
	cost := domain.CostFor(req.JobType, req.Variant)

	reservationID := uuid.NewString()
	balance, err := g.ledger.Reserve(ctx, req.AccountID, cost, reservationID, "reserve "+string(req.JobType))
	if err != nil {
		return nil, err
	}

	requestID, err := g.submitter.Submit(ctx, g.endpoints[req.JobType], req.Params)
	if err != nil {
		// Nothing was accepted upstream; give the credits back immediately.
		remaining, refundErr := g.ledger.Refund(ctx, req.AccountID, cost, reservationID, "submission rejected")
		if refundErr != nil {
			g.logger.Error().Err(refundErr).Str("account", req.AccountID).Msg("orchestrator: refund after submission error failed")
			remaining = balance
		}
		return &Outcome{
			Success:          false,
			CreditsRefunded:  cost,
			RemainingCredits: remaining,
			Error:            err.Error(),
		}, nil
	}

	if err := g.reservations.Record(ctx, &domain.Reservation{
		RequestID: requestID,
		AccountID: req.AccountID,
		JobType:   req.JobType,
		Amount:    cost,
		CreatedAt: time.Now(),
	}); err != nil {
		// The job is already running; a missing reservation row only blinds
		// the sweep, so log and keep going.
		g.logger.Error().Err(err).Str("request_id", requestID).Msg("orchestrator: record reservation failed")
	}

	outcome := g.poller.Await(ctx, requestID, poll.ProfileFor(req.JobType), req.OnProgress)
	return g.settle(ctx, req.AccountID, requestID, req.JobType, cost, outcome), nil
}

// Resolve re-polls a previously timed-out job with a single status check and
// settles its reservation. Safe to call repeatedly and from multiple
// instances: settlement and refund are both idempotent.
func (g *Generator) Resolve(ctx context.Context, requestID string) (*Outcome, error) {
	res, err := g.reservations.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	profile := poll.ProfileFor(res.JobType)
	probe := poll.Profile{Interval: profile.Interval, Ceiling: profile.Interval}
	outcome := g.poller.Await(ctx, requestID, probe, nil)
	if outcome.State == poll.StateTimedOut {
		remaining, _ := g.ledger.Balance(ctx, res.AccountID)
		return &Outcome{
			Pending:          true,
			RequestID:        requestID,
			RemainingCredits: remaining,
			Error:            "still processing, check back later",
		}, nil
	}
	return g.settle(ctx, res.AccountID, requestID, res.JobType, res.Amount, outcome), nil
}

func (g *Generator) settle(ctx context.Context, accountID, requestID string, jobType domain.JobType, cost int64, outcome poll.Outcome) *Outcome {
	switch outcome.State {
	case poll.StateDone:
		if err := g.reservations.Settle(ctx, requestID, domain.ReservationOutcomeCompleted); err != nil {
			g.logger.Error().Err(err).Str("request_id", requestID).Msg("orchestrator: settle failed")
		}
		remaining, err := g.ledger.Balance(ctx, accountID)
		if err != nil {
			g.logger.Warn().Err(err).Str("account", accountID).Msg("orchestrator: balance read failed")
		}
		g.logger.Info().Str("account", accountID).Str("request_id", requestID).Str("job_type", string(jobType)).Int64("cost", cost).Msg("orchestrator: job completed")
		return &Outcome{
			Success:          true,
			RequestID:        requestID,
			Artifacts:        outcome.Result.Artifacts,
			CreditsDeducted:  cost,
			RemainingCredits: remaining,
		}

	case poll.StateTimedOut:
		// Not refunded: the provider may still finish. The reservation stays
		// open for a client re-poll or the reconciliation sweep.
		remaining, _ := g.ledger.Balance(ctx, accountID)
		g.logger.Info().Str("request_id", requestID).Msg("orchestrator: job still processing at ceiling")
		return &Outcome{
			Pending:          true,
			RequestID:        requestID,
			CreditsDeducted:  cost,
			RemainingCredits: remaining,
			Error:            "still processing, check back later",
		}

	default: // poll.StateFailed
		remaining, refundErr := g.ledger.Refund(ctx, accountID, cost, requestID, failureReason(outcome.Err))
		if refundErr != nil {
			g.logger.Error().Err(refundErr).Str("request_id", requestID).Msg("orchestrator: refund failed")
			remaining, _ = g.ledger.Balance(ctx, accountID)
		}
		if err := g.reservations.Settle(ctx, requestID, domain.ReservationOutcomeRefunded); err != nil {
			g.logger.Error().Err(err).Str("request_id", requestID).Msg("orchestrator: settle failed")
		}
		msg := "generation failed"
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		return &Outcome{
			Success:          false,
			RequestID:        requestID,
			CreditsRefunded:  cost,
			RemainingCredits: remaining,
			Error:            msg,
		}
	}
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "provider failure"
	case errors.Is(err, domain.ErrResultMissing):
		return "completed without artifact"
	default:
		return "provider failure"
	}
}
