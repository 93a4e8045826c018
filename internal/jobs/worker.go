package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"reachflow/platform/config"
	"reachflow/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// EnrichmentProvider performs the property-data lookup. The algorithm is an
// opaque remote service; the worker only cares about payload in, payload out.
type EnrichmentProvider interface {
	Enrich(ctx context.Context, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error)
}

// SkipTraceProvider performs the billable contact lookup.
type SkipTraceProvider interface {
	Trace(ctx context.Context, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error)
}

// AITaskProvider performs scoring/outreach-copy generation.
type AITaskProvider interface {
	RunTask(ctx context.Context, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error)
}

// Worker consumes job tasks from asynq and drives job rows to a terminal
// status via the providers.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	gateway  *RemoteGateway
	enricher EnrichmentProvider
	tracer   SkipTraceProvider
	aiRunner AITaskProvider
	log      *logger.Logger
}

// NewWorker builds the asynq server and registers the job handlers.
func NewWorker(cfg config.SchedulerConfig, gateway *RemoteGateway, enricher EnrichmentProvider, tracer SkipTraceProvider, aiRunner AITaskProvider, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := RedisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "reach"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		gateway:  gateway,
		enricher: enricher,
		tracer:   tracer,
		aiRunner: aiRunner,
		log:      log,
	}

	mux.HandleFunc(TaskEnrichment, w.handleJob(KindEnrichment))
	mux.HandleFunc(TaskSkipTrace, w.handleJob(KindSkipTrace))
	mux.HandleFunc(TaskAITask, w.handleJob(KindAITask))

	return w, nil
}

func (w *Worker) handleJob(kind Kind) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseJobPayload(task)
		if err != nil {
			return err
		}

		jobID, err := uuid.Parse(payload.JobID)
		if err != nil {
			return err
		}
		subjectID, err := uuid.Parse(payload.SubjectID)
		if err != nil {
			return err
		}

		job, err := w.gateway.GetStatus(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			// Duplicate delivery of an already-finished job.
			return nil
		}

		if err := w.gateway.MarkRunning(ctx, jobID); err != nil {
			return err
		}
		w.log.JobEvent("running", string(kind), subjectID.String(), jobID.String())

		result, runErr := w.run(ctx, kind, subjectID, job)
		if runErr != nil {
			w.log.JobEvent("failed", string(kind), subjectID.String(), jobID.String())
			if markErr := w.gateway.Fail(ctx, jobID, runErr.Error()); markErr != nil {
				return markErr
			}
			// The failure is recorded on the row; do not let asynq retry,
			// retries of billable work are explicit user actions.
			return nil
		}

		w.log.JobEvent("completed", string(kind), subjectID.String(), jobID.String())
		return w.gateway.Complete(ctx, jobID, result)
	}
}

func (w *Worker) run(ctx context.Context, kind Kind, subjectID uuid.UUID, job *Job) (json.RawMessage, error) {
	input := job.Input
	switch kind {
	case KindEnrichment:
		return w.enricher.Enrich(ctx, subjectID, input)
	case KindSkipTrace:
		return w.tracer.Trace(ctx, subjectID, input)
	case KindAITask:
		return w.aiRunner.RunTask(ctx, subjectID, input)
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("job worker stopped", "error", err)
	}
}
