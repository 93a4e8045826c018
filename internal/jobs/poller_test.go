package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reachflow/platform/logger"

	"github.com/google/uuid"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	// status returned per call number (1-based); later calls repeat the
	// last entry.
	script []Status
	err    error
	onCall func(call int)
}

func (f *scriptedFetcher) GetStatus(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(call)
	}
	if f.err != nil {
		return nil, f.err
	}

	idx := call - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return &Job{ID: jobID, Kind: KindEnrichment, Status: f.script[idx]}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPollerReturnsOnTerminal(t *testing.T) {
	fetcher := &scriptedFetcher{script: []Status{StatusQueued, StatusRunning, StatusCompleted}}
	p := NewPoller(fetcher, time.Millisecond, 50*time.Millisecond, logger.New("test"))

	job, err := p.Wait(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	if got := fetcher.callCount(); got != 3 {
		t.Fatalf("fetcher called %d times, want 3", got)
	}
}

func TestPollerBoundedAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{script: []Status{StatusRunning}}
	p := NewPoller(fetcher, time.Millisecond, 4*time.Millisecond, logger.New("test"))

	job, err := p.Wait(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error, got %v", err)
	}
	if job == nil || job.Status != StatusRunning {
		t.Fatalf("expected last observed running job, got %+v", job)
	}
	// ceil(4ms / 1ms) = 4 queries, never more.
	if got := fetcher.callCount(); got != 4 {
		t.Fatalf("fetcher called %d times, want 4", got)
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{
		script: []Status{StatusRunning},
		onCall: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	p := NewPoller(fetcher, time.Millisecond, time.Second, logger.New("test"))

	job, err := p.Wait(ctx, uuid.New())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job == nil || job.Status != StatusRunning {
		t.Fatalf("expected last observation alongside cancel, got %+v", job)
	}
	if got := fetcher.callCount(); got > 2 {
		t.Fatalf("poller kept querying after cancel: %d calls", got)
	}
}

func TestPollerRetriesTransientQueryError(t *testing.T) {
	fetcher := &scriptedFetcher{script: []Status{StatusCompleted}}
	failing := &flakyFetcher{inner: fetcher, failures: 2}
	p := NewPoller(failing, time.Millisecond, 50*time.Millisecond, logger.New("test"))

	job, err := p.Wait(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
}

type flakyFetcher struct {
	inner    *scriptedFetcher
	mu       sync.Mutex
	failures int
}

func (f *flakyFetcher) GetStatus(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("transient query failure")
	}
	f.mu.Unlock()
	return f.inner.GetStatus(ctx, jobID)
}
