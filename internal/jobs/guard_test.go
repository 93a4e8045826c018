package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
)

type fakeGateway struct {
	submitCalls    int64
	getActiveCalls int64

	blockSubmit  chan struct{} // when set, Submit waits here or for ctx
	submitHangs  bool          // when set, Submit only returns on ctx done
	activeJob    *Job
	submittedJob *Job
}

func (f *fakeGateway) Submit(ctx context.Context, kind Kind, subjectID uuid.UUID, token string, input json.RawMessage) (*Job, error) {
	atomic.AddInt64(&f.submitCalls, 1)

	if f.submitHangs {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.blockSubmit != nil {
		select {
		case <-f.blockSubmit:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.submittedJob != nil {
		return f.submittedJob, nil
	}
	return &Job{ID: uuid.New(), SubjectID: subjectID, Kind: kind, Status: StatusQueued}, nil
}

func (f *fakeGateway) GetStatus(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return nil, nil
}

func (f *fakeGateway) GetActive(ctx context.Context, kind Kind, subjectID uuid.UUID) (*Job, error) {
	atomic.AddInt64(&f.getActiveCalls, 1)
	return f.activeJob, nil
}

func (f *fakeGateway) GetLatest(ctx context.Context, kind Kind, subjectID uuid.UUID) (*Job, error) {
	return f.activeJob, nil
}

func TestGuardCollapsesConcurrentSubmissions(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		blockSubmit:  release,
		submittedJob: &Job{ID: uuid.New(), Kind: KindSkipTrace, Status: StatusQueued},
	}
	guard := NewGuard(gw, 0, logger.New("test"))

	subjectID := uuid.New()
	const callers = 8

	var wg sync.WaitGroup
	results := make([]*Job, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = guard.Submit(context.Background(), KindSkipTrace, subjectID, uuid.NewString(), nil)
		}(i)
	}

	// Let every caller pile onto the in-flight submission before it returns.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i].ID != gw.submittedJob.ID {
			t.Fatalf("caller %d got job %s, want %s", i, results[i].ID, gw.submittedJob.ID)
		}
	}
	if calls := atomic.LoadInt64(&gw.submitCalls); calls != 1 {
		t.Fatalf("gateway.Submit called %d times, want 1", calls)
	}
}

func TestGuardTimeoutMarksOutcomeUnknown(t *testing.T) {
	gw := &fakeGateway{submitHangs: true}
	guard := NewGuard(gw, 5*time.Millisecond, logger.New("test"))

	subjectID := uuid.New()
	_, err := guard.Submit(context.Background(), KindEnrichment, subjectID, uuid.NewString(), nil)
	if !apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected timeout kind, got %v", err)
	}

	// The submission may have reached the server. The next attempt must
	// re-check instead of blindly resubmitting.
	existing := &Job{ID: uuid.New(), SubjectID: subjectID, Kind: KindEnrichment, Status: StatusRunning}
	gw.activeJob = existing
	gw.submitHangs = false

	job, err := guard.Submit(context.Background(), KindEnrichment, subjectID, uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("recovery submit failed: %v", err)
	}
	if job.ID != existing.ID {
		t.Fatalf("expected recovered job %s, got %s", existing.ID, job.ID)
	}
	if calls := atomic.LoadInt64(&gw.getActiveCalls); calls != 1 {
		t.Fatalf("GetActive called %d times, want 1", calls)
	}
	if calls := atomic.LoadInt64(&gw.submitCalls); calls != 1 {
		t.Fatalf("gateway.Submit called %d times, want 1 (no resubmission)", calls)
	}
}

func TestGuardResubmitsWhenNoActiveJobFound(t *testing.T) {
	gw := &fakeGateway{submitHangs: true}
	guard := NewGuard(gw, 5*time.Millisecond, logger.New("test"))

	subjectID := uuid.New()
	if _, err := guard.Submit(context.Background(), KindEnrichment, subjectID, uuid.NewString(), nil); !apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected timeout kind, got %v", err)
	}

	// Server has no trace of the first attempt, so a fresh submission is safe.
	gw.submitHangs = false
	job, err := guard.Submit(context.Background(), KindEnrichment, subjectID, uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if job == nil || job.Status != StatusQueued {
		t.Fatalf("expected fresh queued job, got %+v", job)
	}
	if calls := atomic.LoadInt64(&gw.submitCalls); calls != 2 {
		t.Fatalf("gateway.Submit called %d times, want 2", calls)
	}
}
