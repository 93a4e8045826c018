package jobs

import (
	"context"
	"time"

	"reachflow/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollMaxWait  = 45 * time.Second
)

// Poller repeatedly queries the gateway for a job until a terminal status is
// observed or the wait budget elapses. It never polls open-ended: the number
// of queries is bounded by ceil(maxWait/interval).
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	maxWait  time.Duration
	log      *logger.Logger
}

// NewPoller creates a poller. Non-positive interval or maxWait fall back to
// the defaults.
func NewPoller(fetcher StatusFetcher, interval, maxWait time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = defaultPollMaxWait
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		maxWait:  maxWait,
		log:      log,
	}
}

// maxAttempts returns ceil(maxWait/interval), at least 1.
func (p *Poller) maxAttempts() int {
	attempts := int((p.maxWait + p.interval - 1) / p.interval)
	if attempts < 1 {
		attempts = 1
	}
	return attempts
}

// Wait polls the job until it is terminal, the wait budget elapses, or the
// context is cancelled.
//
// On budget exhaustion the last observed (non-terminal) job is returned with
// a nil error; the caller decides whether to keep the workflow pending or
// surface a manual re-check. On cancellation no further queries are issued
// and the context error is returned alongside the last observation, if any.
func (p *Poller) Wait(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var last *Job

	timer := time.NewTimer(0) // first query immediately
	defer timer.Stop()

	for attempt := 0; attempt < p.maxAttempts(); attempt++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		job, err := p.fetcher.GetStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			if p.log != nil {
				p.log.Warn("job poll query failed", "job_id", jobID, "error", err)
			}
		} else {
			last = job
			if job.Status.IsTerminal() {
				return job, nil
			}
		}

		timer.Reset(p.interval)
	}

	if p.log != nil && last != nil {
		p.log.JobEvent("poll_budget_exhausted", string(last.Kind), last.SubjectID.String(), jobID.String())
	}
	return last, nil
}
