package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RemoteGateway implements Gateway on Postgres plus asynq. Job rows live in
// reach_jobs; a partial unique index on (kind, subject_id) over active rows
// enforces at most one active job per subject per kind regardless of how many
// clients submit. Execution happens out of process: submission enqueues an
// asynq task keyed by the job id, and the worker marks the row terminal.
type RemoteGateway struct {
	pool   *pgxpool.Pool
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

// NewRemoteGateway creates the gateway. The asynq client may be nil in tests
// that only exercise the row lifecycle.
func NewRemoteGateway(pool *pgxpool.Pool, client *asynq.Client, queue string, log *logger.Logger) *RemoteGateway {
	if queue == "" {
		queue = "reach"
	}
	return &RemoteGateway{pool: pool, client: client, queue: queue, log: log}
}

const jobColumns = `id, subject_id, kind, status, input, result, error, idempotency_token, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var kind, status, token string
	if err := row.Scan(&j.ID, &j.SubjectID, &kind, &status, &j.Input, &j.Result, &j.Error, &token, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = Kind(kind)
	j.Status = Status(status)
	return &j, nil
}

// Submit creates a job row for (kind, subject) or returns the existing active
// one, then enqueues the execution task. The same idempotency token always
// resolves to the same job row.
func (g *RemoteGateway) Submit(ctx context.Context, kind Kind, subjectID uuid.UUID, token string, input json.RawMessage) (*Job, error) {
	if token == "" {
		return nil, apperr.Validation("idempotency token is required")
	}

	// A token seen before maps to the job it created, active or terminal.
	if job, err := g.getByToken(ctx, token); err != nil {
		return nil, err
	} else if job != nil {
		return job, nil
	}

	// The partial unique index reach_jobs_active_uq makes the insert lose to
	// a concurrent active job; the follow-up select returns the winner.
	row := g.pool.QueryRow(ctx,
		`INSERT INTO reach_jobs (id, subject_id, kind, status, input, idempotency_token)
		 VALUES ($1, $2, $3, 'queued', $4, $5)
		 ON CONFLICT DO NOTHING
		 RETURNING `+jobColumns,
		uuid.New(), subjectID, string(kind), input, token,
	)

	job, err := scanJob(row)
	switch {
	case err == nil:
		if g.log != nil {
			g.log.JobEvent("submitted", string(kind), subjectID.String(), job.ID.String())
		}
		if err := g.enqueue(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := g.GetActive(ctx, kind, subjectID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, apperr.Internal("job insert conflicted but no active job found")
		}
		if g.log != nil {
			g.log.JobEvent("submit_returned_existing", string(kind), subjectID.String(), existing.ID.String())
		}
		return existing, nil
	default:
		return nil, apperr.Wrap(apperr.KindInternal, "failed to submit job", err)
	}
}

func (g *RemoteGateway) enqueue(ctx context.Context, job *Job) error {
	if g.client == nil {
		return nil
	}

	task, err := NewJobTask(job.Kind, JobPayload{JobID: job.ID.String(), SubjectID: job.SubjectID.String()})
	if err != nil {
		return err
	}

	_, err = g.client.EnqueueContext(ctx, task, asynq.TaskID(job.ID.String()), asynq.Queue(g.queue))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Already enqueued by an earlier attempt with the same job id.
		return nil
	}
	return err
}

// GetStatus fetches the job by id.
func (g *RemoteGateway) GetStatus(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM reach_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job not found")
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetActive returns the active (queued or running) job for (kind, subject),
// or nil when there is none.
func (g *RemoteGateway) GetActive(ctx context.Context, kind Kind, subjectID uuid.UUID) (*Job, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM reach_jobs
		 WHERE kind = $1 AND subject_id = $2 AND status IN ('queued', 'running')
		 ORDER BY created_at DESC LIMIT 1`,
		string(kind), subjectID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetLatest returns the most recent job of the kind for the subject,
// regardless of status. Used by replay to recognize already-finished work.
func (g *RemoteGateway) GetLatest(ctx context.Context, kind Kind, subjectID uuid.UUID) (*Job, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM reach_jobs
		 WHERE kind = $1 AND subject_id = $2
		 ORDER BY created_at DESC LIMIT 1`,
		string(kind), subjectID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (g *RemoteGateway) getByToken(ctx context.Context, token string) (*Job, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM reach_jobs WHERE idempotency_token = $1`, token)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkRunning transitions a queued job to running. Worker-side only.
func (g *RemoteGateway) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	_, err := g.pool.Exec(ctx,
		`UPDATE reach_jobs SET status = 'running', updated_at = now()
		 WHERE id = $1 AND status = 'queued'`, jobID)
	return err
}

// Complete stores the job result and marks it completed. Worker-side only.
func (g *RemoteGateway) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	_, err := g.pool.Exec(ctx,
		`UPDATE reach_jobs SET status = 'completed', result = $2, error = NULL, updated_at = now()
		 WHERE id = $1`, jobID, result)
	return err
}

// Fail records the failure reason and marks the job failed. Worker-side only.
func (g *RemoteGateway) Fail(ctx context.Context, jobID uuid.UUID, reason string) error {
	_, err := g.pool.Exec(ctx,
		`UPDATE reach_jobs SET status = 'failed', error = $2, updated_at = now()
		 WHERE id = $1`, jobID, reason)
	return err
}

// FailStaleRunning is a maintenance hook: jobs stuck running longer than the
// horizon are failed so the subject can be retried.
func (g *RemoteGateway) FailStaleRunning(ctx context.Context, horizon time.Duration) (int64, error) {
	tag, err := g.pool.Exec(ctx,
		`UPDATE reach_jobs SET status = 'failed', error = 'worker timeout', updated_at = now()
		 WHERE status = 'running' AND updated_at < now() - make_interval(secs => $1)`,
		horizon.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Gateway = (*RemoteGateway)(nil)
