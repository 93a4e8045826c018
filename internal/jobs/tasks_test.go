package jobs

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func TestJobTaskPayloadRoundTrip(t *testing.T) {
	payload := JobPayload{JobID: uuid.NewString(), SubjectID: uuid.NewString()}

	task, err := NewJobTask(KindSkipTrace, payload)
	if err != nil {
		t.Fatalf("NewJobTask: %v", err)
	}
	if task.Type() != TaskSkipTrace {
		t.Fatalf("task type = %s, want %s", task.Type(), TaskSkipTrace)
	}

	parsed, err := ParseJobPayload(task)
	if err != nil {
		t.Fatalf("ParseJobPayload: %v", err)
	}
	if parsed != payload {
		t.Fatalf("payload round trip = %+v, want %+v", parsed, payload)
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := RedisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("RedisClientOpt: %v", err)
	}
	if opt.Addr != "localhost:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected opt: %+v", opt)
	}
	if opt.TLSConfig != nil {
		t.Fatal("plain redis URL must not configure TLS")
	}

	if _, err := RedisClientOpt("not a url", false); err == nil {
		t.Fatal("expected error for malformed redis URL")
	}
}

func TestEnqueueJobTask(t *testing.T) {
	mr := miniredis.RunT(t)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer client.Close()

	task, err := NewJobTask(KindEnrichment, JobPayload{JobID: uuid.NewString(), SubjectID: uuid.NewString()})
	if err != nil {
		t.Fatalf("NewJobTask: %v", err)
	}

	jobID := uuid.NewString()
	info, err := client.Enqueue(task, asynq.Queue("reach"), asynq.TaskID(jobID))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if info.Queue != "reach" || info.ID != jobID {
		t.Fatalf("unexpected task info: %+v", info)
	}

	// Enqueueing the same task id again must surface the duplicate, which
	// the gateway treats as already-submitted.
	if _, err := client.Enqueue(task, asynq.Queue("reach"), asynq.TaskID(jobID)); err == nil {
		t.Fatal("expected duplicate task id to be rejected")
	}
}
