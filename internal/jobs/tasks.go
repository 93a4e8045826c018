package jobs

import (
	"crypto/tls"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskEnrichment = "reach.enrichment"
	TaskSkipTrace  = "reach.skiptrace"
	TaskAITask     = "reach.ai_task"
)

// taskTypeFor maps a job kind to its asynq task type.
func taskTypeFor(kind Kind) string {
	switch kind {
	case KindEnrichment:
		return TaskEnrichment
	case KindSkipTrace:
		return TaskSkipTrace
	default:
		return TaskAITask
	}
}

// JobPayload is the asynq task payload carrying the job row reference.
type JobPayload struct {
	JobID     string `json:"jobId"`
	SubjectID string `json:"subjectId"`
}

// NewJobTask builds the asynq task for a job row.
func NewJobTask(kind Kind, payload JobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeFor(kind), data), nil
}

// ParseJobPayload decodes the payload of a job task.
func ParseJobPayload(task *asynq.Task) (JobPayload, error) {
	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return JobPayload{}, err
	}
	return payload, nil
}

// RedisClientOpt builds the asynq Redis connection options from a redis URL.
func RedisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
