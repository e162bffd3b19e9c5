package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forge/internal/domain"
)

// scriptedFetcher replays a fixed sequence of status payloads, then repeats
// the last one. A nil entry simulates a transport error.
type scriptedFetcher struct {
	statuses      []any // string payload or error
	statusCalls   int
	resultPayload string
	resultErr     error
	resultCalls   int
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, requestID string) ([]byte, error) {
	idx := f.statusCalls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.statusCalls++
	switch v := f.statuses[idx].(type) {
	case error:
		return nil, v
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("bad script entry")
}

func (f *scriptedFetcher) FetchResult(ctx context.Context, requestID string) ([]byte, error) {
	f.resultCalls++
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return []byte(f.resultPayload), nil
}

func newTestController(f Fetcher) *Controller {
	c := New(f, zerolog.New(io.Discard))
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

var fastProfile = Profile{Interval: time.Second, Ceiling: 10 * time.Second}

func TestAwaitCompletedThenResultFetch(t *testing.T) {
	fetcher := &scriptedFetcher{
		statuses:      []any{`{"status": "QUEUED"}`, `{"status": "IN_PROGRESS"}`, `{"status": "COMPLETED"}`},
		resultPayload: `{"output": {"urls": ["https://cdn.example.com/out.png"]}}`,
	}
	var progress []domain.JobStatus
	outcome := newTestController(fetcher).Await(context.Background(), "req-1", fastProfile, func(s domain.JobStatus) {
		progress = append(progress, s)
	})

	if outcome.State != StateDone {
		t.Fatalf("state = %q (err %v), want DONE", outcome.State, outcome.Err)
	}
	if outcome.Result == nil || outcome.Result.Artifacts[0].URL != "https://cdn.example.com/out.png" {
		t.Fatalf("result = %+v", outcome.Result)
	}
	if fetcher.resultCalls != 1 {
		t.Fatalf("result calls = %d, want 1", fetcher.resultCalls)
	}
	if len(progress) != 2 || progress[0] != domain.JobStatusQueued || progress[1] != domain.JobStatusRunning {
		t.Fatalf("progress = %v", progress)
	}
}

func TestAwaitInlineArtifactSkipsResultFetch(t *testing.T) {
	fetcher := &scriptedFetcher{
		statuses: []any{`{"status": "COMPLETED", "data": {"url": "https://cdn.example.com/inline.mp4"}}`},
	}
	outcome := newTestController(fetcher).Await(context.Background(), "req-1", fastProfile, nil)

	if outcome.State != StateDone {
		t.Fatalf("state = %q, want DONE", outcome.State)
	}
	if fetcher.resultCalls != 0 {
		t.Fatalf("result calls = %d, want 0 (artifact was inline)", fetcher.resultCalls)
	}
}

func TestAwaitCompletedWithoutArtifactFails(t *testing.T) {
	fetcher := &scriptedFetcher{
		statuses:      []any{`{"status": "COMPLETED"}`},
		resultPayload: `{"result": {"note": "nothing here"}}`,
	}
	outcome := newTestController(fetcher).Await(context.Background(), "req-1", fastProfile, nil)

	if outcome.State != StateFailed {
		t.Fatalf("state = %q, want FAILED", outcome.State)
	}
	if !errors.Is(outcome.Err, domain.ErrResultMissing) {
		t.Fatalf("err = %v, want ErrResultMissing", outcome.Err)
	}
}

func TestAwaitExplicitFailure(t *testing.T) {
	fetcher := &scriptedFetcher{
		statuses: []any{`{"status": "ERROR", "message": "nsfw content rejected"}`},
	}
	outcome := newTestController(fetcher).Await(context.Background(), "req-1", fastProfile, nil)

	if outcome.State != StateFailed {
		t.Fatalf("state = %q, want FAILED", outcome.State)
	}
	if !errors.Is(outcome.Err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", outcome.Err)
	}
}

func TestAwaitTimesOutAtCeiling(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []any{`{"status": "RUNNING"}`}}
	outcome := newTestController(fetcher).Await(context.Background(), "req-1", fastProfile, nil)

	if outcome.State != StateTimedOut {
		t.Fatalf("state = %q, want TIMED_OUT", outcome.State)
	}
	if want := int(fastProfile.Ceiling / fastProfile.Interval); fetcher.statusCalls != want {
		t.Fatalf("status calls = %d, want %d (ceiling / interval)", fetcher.statusCalls, want)
	}
}

func TestAwaitRetriesTransientFetchErrors(t *testing.T) {
	netErr := errors.New("connection reset")
	fetcher := &scriptedFetcher{
		statuses: []any{netErr, netErr, `{"status": "COMPLETED", "url": "https://cdn.example.com/a.png"}`},
	}
	outcome := newTestController(fetcher).Await(context.Background(), "req-1", fastProfile, nil)

	if outcome.State != StateDone {
		t.Fatalf("state = %q (err %v), want DONE after transient errors", outcome.State, outcome.Err)
	}
}

func TestAwaitEscalatesAfterConsecutiveFetchErrors(t *testing.T) {
	netErr := errors.New("connection reset")
	fetcher := &scriptedFetcher{statuses: []any{netErr}}
	controller := newTestController(fetcher)
	outcome := controller.Await(context.Background(), "req-1", Profile{Interval: time.Second, Ceiling: time.Minute}, nil)

	if outcome.State != StateFailed {
		t.Fatalf("state = %q, want FAILED", outcome.State)
	}
	if fetcher.statusCalls != defaultMaxFetchErrors {
		t.Fatalf("status calls = %d, want %d", fetcher.statusCalls, defaultMaxFetchErrors)
	}
}

func TestAwaitSingleProbeReturnsWithoutSleeping(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []any{`{"status": "RUNNING"}`}}
	controller := New(fetcher, zerolog.New(io.Discard))
	controller.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("single-probe poll must not sleep")
		return nil
	}

	outcome := controller.Await(context.Background(), "req-1", Profile{Interval: time.Second, Ceiling: time.Second}, nil)
	if outcome.State != StateTimedOut {
		t.Fatalf("state = %q, want TIMED_OUT", outcome.State)
	}
	if fetcher.statusCalls != 1 {
		t.Fatalf("status calls = %d, want 1", fetcher.statusCalls)
	}
}

func TestAwaitCancellationReportsTimedOut(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []any{`{"status": "RUNNING"}`}}
	controller := New(fetcher, zerolog.New(io.Discard))
	controller.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	outcome := controller.Await(context.Background(), "req-1", fastProfile, nil)
	if outcome.State != StateTimedOut {
		t.Fatalf("state = %q, want TIMED_OUT (job keeps running server-side)", outcome.State)
	}
}

func TestProfileCeilings(t *testing.T) {
	if p := ProfileFor(domain.JobTypeMusic); p.Ceiling != 60*time.Second {
		t.Fatalf("music ceiling = %s", p.Ceiling)
	}
	if p := ProfileFor(domain.JobTypeVideo); p.Ceiling != 10*time.Minute {
		t.Fatalf("video ceiling = %s", p.Ceiling)
	}
	if p := ProfileFor(domain.JobType("unknown")); p.Ceiling <= 0 || p.Interval <= 0 {
		t.Fatalf("unknown profile = %+v", p)
	}
}
