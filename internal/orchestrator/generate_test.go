package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forge/internal/domain"
	"forge/internal/ledger"
	"forge/internal/poll"
	"forge/internal/provider"
)

type fakeSubmitter struct {
	requestID string
	err       error
	calls     int
	endpoint  string
}

func (f *fakeSubmitter) Submit(ctx context.Context, endpoint string, params map[string]any) (string, error) {
	f.calls++
	f.endpoint = endpoint
	if f.err != nil {
		return "", f.err
	}
	return f.requestID, nil
}

type fakePoller struct {
	outcome poll.Outcome
	calls   int
}

func (f *fakePoller) Await(ctx context.Context, requestID string, profile poll.Profile, onProgress func(domain.JobStatus)) poll.Outcome {
	f.calls++
	return f.outcome
}

type memReservations struct {
	mu   sync.Mutex
	byID map[string]*domain.Reservation
}

func newMemReservations() *memReservations {
	return &memReservations{byID: make(map[string]*domain.Reservation)}
}

func (m *memReservations) Record(ctx context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[res.RequestID]; ok {
		return nil
	}
	clone := *res
	m.byID[res.RequestID] = &clone
	return nil
}

func (m *memReservations) Settle(ctx context.Context, requestID, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.byID[requestID]; ok && !res.Settled {
		res.Settled = true
		res.Outcome = outcome
	}
	return nil
}

func (m *memReservations) Get(ctx context.Context, requestID string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.byID[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *res
	return &clone, nil
}

func (m *memReservations) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, res := range m.byID {
		if !res.Settled && res.CreatedAt.Before(olderThan) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func doneOutcome(url string) poll.Outcome {
	return poll.Outcome{State: poll.StateDone, Result: &domain.JobResult{Artifacts: []domain.Artifact{{URL: url}}}}
}

func newFixture(credits int64, submitter *fakeSubmitter, poller *fakePoller) (*Generator, *ledger.Ledger, *memReservations) {
	store := ledger.NewMemStore()
	store.Seed("acct", credits)
	led := ledger.New(store, zerolog.New(io.Discard))
	reservations := newMemReservations()
	gen := NewGenerator(led, submitter, poller, reservations, zerolog.New(io.Discard))
	return gen, led, reservations
}

func TestGenerateHappyPath(t *testing.T) {
	submitter := &fakeSubmitter{requestID: "req-1"}
	poller := &fakePoller{outcome: doneOutcome("https://cdn.example.com/a.png")}
	gen, led, reservations := newFixture(10, submitter, poller)

	outcome, err := gen.Generate(context.Background(), GenerateRequest{
		AccountID: "acct",
		JobType:   domain.JobTypeImage,
		Params:    map[string]any{"prompt": "a cat"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.CreditsDeducted != 3 || outcome.RemainingCredits != 7 {
		t.Fatalf("deducted = %d remaining = %d, want 3 and 7", outcome.CreditsDeducted, outcome.RemainingCredits)
	}
	if submitter.endpoint != "/generate/image" {
		t.Fatalf("endpoint = %q", submitter.endpoint)
	}
	if balance, _ := led.Balance(context.Background(), "acct"); balance != 7 {
		t.Fatalf("balance = %d, want 7", balance)
	}
	res, err := reservations.Get(context.Background(), "req-1")
	if err != nil || !res.Settled || res.Outcome != domain.ReservationOutcomeCompleted {
		t.Fatalf("reservation = %+v (%v), want settled completed", res, err)
	}
}

func TestGenerateInsufficientCreditsSubmitsNothing(t *testing.T) {
	submitter := &fakeSubmitter{requestID: "req-1"}
	poller := &fakePoller{outcome: doneOutcome("x")}
	gen, _, _ := newFixture(2, submitter, poller)

	_, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: domain.JobTypeImage})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("submit calls = %d, want 0", submitter.calls)
	}
}

func TestGenerateSubmissionErrorRefunds(t *testing.T) {
	submitter := &fakeSubmitter{err: &provider.SubmissionError{Status: 422, Body: "bad params"}}
	poller := &fakePoller{}
	gen, led, _ := newFixture(10, submitter, poller)

	outcome, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: domain.JobTypeVideo})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if outcome.Success {
		t.Fatal("expected failure outcome")
	}
	if outcome.CreditsRefunded != 5 || outcome.RemainingCredits != 10 {
		t.Fatalf("refunded = %d remaining = %d, want 5 and 10", outcome.CreditsRefunded, outcome.RemainingCredits)
	}
	if poller.calls != 0 {
		t.Fatalf("poller calls = %d, want 0 (no job exists)", poller.calls)
	}
	if balance, _ := led.Balance(context.Background(), "acct"); balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
}

func TestGenerateProviderFailureRefundsExactlyOnce(t *testing.T) {
	submitter := &fakeSubmitter{requestID: "req-9"}
	poller := &fakePoller{outcome: poll.Outcome{State: poll.StateFailed, Err: domain.ErrProviderFailure}}
	gen, led, reservations := newFixture(10, submitter, poller)

	outcome, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: domain.JobTypeImage})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if outcome.Success || outcome.CreditsRefunded != 3 {
		t.Fatalf("outcome = %+v, want refund of 3", outcome)
	}
	if balance, _ := led.Balance(context.Background(), "acct"); balance != 10 {
		t.Fatalf("balance = %d, want 10 after refund", balance)
	}
	res, _ := reservations.Get(context.Background(), "req-9")
	if !res.Settled || res.Outcome != domain.ReservationOutcomeRefunded {
		t.Fatalf("reservation = %+v, want settled refunded", res)
	}
}

func TestGenerateTimeoutKeepsReservation(t *testing.T) {
	submitter := &fakeSubmitter{requestID: "req-7"}
	poller := &fakePoller{outcome: poll.Outcome{State: poll.StateTimedOut}}
	gen, led, reservations := newFixture(10, submitter, poller)

	outcome, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: domain.JobTypeVideo})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !outcome.Pending || outcome.Success {
		t.Fatalf("outcome = %+v, want pending", outcome)
	}
	if outcome.RequestID != "req-7" {
		t.Fatalf("request id = %q, want re-pollable id", outcome.RequestID)
	}
	if outcome.CreditsRefunded != 0 {
		t.Fatalf("refunded = %d, want 0 on timeout", outcome.CreditsRefunded)
	}
	if balance, _ := led.Balance(context.Background(), "acct"); balance != 5 {
		t.Fatalf("balance = %d, want 5 (reservation stands)", balance)
	}
	res, _ := reservations.Get(context.Background(), "req-7")
	if res.Settled {
		t.Fatalf("reservation = %+v, want unsettled", res)
	}
}

func TestGenerateVariantSpecificCost(t *testing.T) {
	cases := []struct {
		variant string
		want    int64
	}{
		{"Geometry", 2},
		{"LowPoly", 3},
	}
	for _, tc := range cases {
		submitter := &fakeSubmitter{requestID: "req-" + tc.variant}
		poller := &fakePoller{outcome: doneOutcome("https://cdn.example.com/m.glb")}
		gen, _, _ := newFixture(10, submitter, poller)

		outcome, err := gen.Generate(context.Background(), GenerateRequest{
			AccountID: "acct",
			JobType:   domain.JobTypeModel3D,
			Variant:   tc.variant,
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.variant, err)
		}
		if outcome.CreditsDeducted != tc.want {
			t.Fatalf("%s: deducted = %d, want %d", tc.variant, outcome.CreditsDeducted, tc.want)
		}
	}
}

func TestGenerateUnknownJobType(t *testing.T) {
	gen, _, _ := newFixture(10, &fakeSubmitter{}, &fakePoller{})
	_, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: "hologram"})
	if !errors.Is(err, domain.ErrUnsupportedJobType) {
		t.Fatalf("err = %v, want ErrUnsupportedJobType", err)
	}
}

func TestResolveSettlesLateCompletion(t *testing.T) {
	submitter := &fakeSubmitter{requestID: "req-late"}
	poller := &fakePoller{outcome: poll.Outcome{State: poll.StateTimedOut}}
	gen, led, reservations := newFixture(10, submitter, poller)

	if _, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: domain.JobTypeVideo}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	poller.outcome = doneOutcome("https://cdn.example.com/late.mp4")
	outcome, err := gen.Resolve(context.Background(), "req-late")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !outcome.Success || outcome.Artifacts[0].URL != "https://cdn.example.com/late.mp4" {
		t.Fatalf("outcome = %+v, want late success", outcome)
	}
	if balance, _ := led.Balance(context.Background(), "acct"); balance != 5 {
		t.Fatalf("balance = %d, want 5 (credits stay spent)", balance)
	}
	res, _ := reservations.Get(context.Background(), "req-late")
	if !res.Settled || res.Outcome != domain.ReservationOutcomeCompleted {
		t.Fatalf("reservation = %+v, want settled completed", res)
	}
}

func TestResolveLateFailureRefunds(t *testing.T) {
	submitter := &fakeSubmitter{requestID: "req-dead"}
	poller := &fakePoller{outcome: poll.Outcome{State: poll.StateTimedOut}}
	gen, led, _ := newFixture(10, submitter, poller)

	if _, err := gen.Generate(context.Background(), GenerateRequest{AccountID: "acct", JobType: domain.JobTypeImage}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	poller.outcome = poll.Outcome{State: poll.StateFailed, Err: domain.ErrProviderFailure}
	outcome, err := gen.Resolve(context.Background(), "req-dead")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if outcome.CreditsRefunded != 3 {
		t.Fatalf("refunded = %d, want 3", outcome.CreditsRefunded)
	}
	if balance, _ := led.Balance(context.Background(), "acct"); balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
}
