package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Guard wraps billable submissions so the underlying job is created at most
// once per (kind, subject), regardless of duplicate taps or retried calls.
//
// Concurrent submissions for the same subject collapse onto one in-flight
// gateway call via singleflight. The gateway's own uniqueness constraint
// covers duplicates across process restarts; the guard's extra duty is the
// timeout case: when a submission's outcome is unknown, the next attempt
// re-checks server state before constructing a fresh submission.
type Guard struct {
	gateway Gateway
	timeout time.Duration
	log     *logger.Logger

	flight singleflight.Group

	mu      sync.Mutex
	unknown map[string]bool
}

// NewGuard creates a submission guard. A non-positive timeout disables the
// request-level deadline.
func NewGuard(gateway Gateway, timeout time.Duration, log *logger.Logger) *Guard {
	return &Guard{
		gateway: gateway,
		timeout: timeout,
		log:     log,
		unknown: make(map[string]bool),
	}
}

func guardKey(kind Kind, subjectID uuid.UUID) string {
	return string(kind) + ":" + subjectID.String()
}

// Submit performs the guarded submission. The token is the idempotency token
// forwarded to the gateway; callers replaying a queued mutation pass the
// mutation's id so a partially applied submission is not duplicated.
func (g *Guard) Submit(ctx context.Context, kind Kind, subjectID uuid.UUID, token string, input json.RawMessage) (*Job, error) {
	key := guardKey(kind, subjectID)

	v, err, _ := g.flight.Do(key, func() (interface{}, error) {
		return g.submit(ctx, key, kind, subjectID, token, input)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Job), nil
}

func (g *Guard) submit(ctx context.Context, key string, kind Kind, subjectID uuid.UUID, token string, input json.RawMessage) (*Job, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	// A previous attempt timed out with an unknown outcome: the job may or
	// may not exist server-side. Re-check before submitting again.
	if g.isUnknown(key) {
		existing, err := g.gateway.GetActive(ctx, kind, subjectID)
		if err != nil {
			if isDeadline(err) {
				return nil, apperr.Wrap(apperr.KindTimeout, "submission state unknown, re-check timed out", err)
			}
			return nil, apperr.Wrap(apperr.KindInternal, "failed to re-check submission state", err)
		}
		if existing != nil {
			g.clearUnknown(key)
			if g.log != nil {
				g.log.JobEvent("submit_recovered_existing", string(kind), subjectID.String(), existing.ID.String())
			}
			return existing, nil
		}
		g.clearUnknown(key)
	}

	job, err := g.gateway.Submit(ctx, kind, subjectID, token, input)
	if err != nil {
		if isDeadline(err) {
			// The gateway may have created the job before the deadline hit.
			// Treat the outcome as unknown, not failed.
			g.markUnknown(key)
			return nil, apperr.Wrap(apperr.KindTimeout, "submission outcome unknown", err)
		}
		return nil, err
	}

	g.clearUnknown(key)
	return job, nil
}

func (g *Guard) isUnknown(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unknown[key]
}

func (g *Guard) markUnknown(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unknown[key] = true
}

func (g *Guard) clearUnknown(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.unknown, key)
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
