package sweeper

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forge/internal/domain"
	"forge/internal/orchestrator"
)

type memReservations struct {
	stale []domain.Reservation
}

func (m *memReservations) Record(ctx context.Context, res *domain.Reservation) error { return nil }
func (m *memReservations) Settle(ctx context.Context, requestID, outcome string) error {
	return nil
}
func (m *memReservations) Get(ctx context.Context, requestID string) (*domain.Reservation, error) {
	return nil, domain.ErrNotFound
}
func (m *memReservations) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	return m.stale, nil
}

type scriptedResolver struct {
	outcomes map[string]*orchestrator.Outcome
	calls    []string
}

func (r *scriptedResolver) Resolve(ctx context.Context, requestID string) (*orchestrator.Outcome, error) {
	r.calls = append(r.calls, requestID)
	return r.outcomes[requestID], nil
}

func TestSweepOnceSettlesAndCounts(t *testing.T) {
	reservations := &memReservations{stale: []domain.Reservation{
		{RequestID: "done-late", AccountID: "a", JobType: domain.JobTypeVideo, Amount: 5},
		{RequestID: "gone", AccountID: "a", JobType: domain.JobTypeImage, Amount: 3},
		{RequestID: "still-running", AccountID: "b", JobType: domain.JobTypeModel3D, Amount: 2},
	}}
	resolver := &scriptedResolver{outcomes: map[string]*orchestrator.Outcome{
		"done-late":     {Success: true, RequestID: "done-late"},
		"gone":          {Success: false, CreditsRefunded: 3},
		"still-running": {Pending: true, RequestID: "still-running"},
	}}
	s := New(reservations, resolver, time.Minute, zerolog.New(io.Discard))

	settled, pending, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 2 || pending != 1 {
		t.Fatalf("settled = %d pending = %d, want 2 and 1", settled, pending)
	}
	if len(resolver.calls) != 3 {
		t.Fatalf("resolve calls = %v", resolver.calls)
	}
}
