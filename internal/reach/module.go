// Package reach provides the lead reach workflow bounded context module.
// This file defines the module that encapsulates all reach setup and route registration.
package reach

import (
	"context"

	"reachflow/internal/events"
	apphttp "reachflow/internal/http"
	"reachflow/internal/jobs"
	"reachflow/internal/outbox"
	"reachflow/internal/outcomes"
	"reachflow/internal/reach/handler"
	"reachflow/internal/reach/repository"
	"reachflow/internal/reach/service"
	"reachflow/platform/config"
	"reachflow/platform/logger"
	"reachflow/platform/validator"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig combines the config interfaces the reach module needs.
type ModuleConfig interface {
	config.SchedulerConfig
	config.PollerConfig
	config.OutboxConfig
}

// Module is the reach bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	conn    *service.Connectivity
	queue   *outbox.Queue
	drainer *outbox.Drainer
	asynq   *asynq.Client
	log     *logger.Logger
}

// NewModule creates and initializes the reach module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg ModuleConfig, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)

	redisOpt, err := jobs.RedisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	asynqClient := asynq.NewClient(redisOpt)

	gateway := jobs.NewRemoteGateway(pool, asynqClient, cfg.GetAsynqQueueName(), log)
	guard := jobs.NewGuard(gateway, cfg.GetSubmitTimeout(), log)
	poller := jobs.NewPoller(gateway, cfg.GetPollInterval(), cfg.GetPollMaxWait(), log)

	queue, err := outbox.Open(cfg.GetOutboxPath())
	if err != nil {
		asynqClient.Close()
		return nil, err
	}

	recorder := outcomes.NewRecorder(repo, eventBus, log)
	conn := service.NewConnectivity(true)

	svc := service.NewService(repo, gateway, guard, poller, queue, recorder, conn, eventBus, log)
	drainer := outbox.NewDrainer(queue, svc, log)

	// Regained connectivity triggers a drain of everything queued offline.
	conn.OnReconnect(func() {
		go func() {
			if err := drainer.Drain(context.Background()); err != nil {
				log.Error("mutation queue drain failed", "error", err)
			}
		}()
	})

	h := handler.New(svc, conn, val)

	return &Module{
		handler: h,
		service: svc,
		conn:    conn,
		queue:   queue,
		drainer: drainer,
		asynq:   asynqClient,
		log:     log,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reach"
}

// Service returns the reach service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Connectivity returns the connectivity tracker for external signals.
func (m *Module) Connectivity() *service.Connectivity {
	return m.conn
}

// Drainer returns the mutation queue drainer for manual triggers.
func (m *Module) Drainer() *outbox.Drainer {
	return m.drainer
}

// Close releases the module's long-lived resources.
func (m *Module) Close() error {
	err := m.asynq.Close()
	if qerr := m.queue.Close(); err == nil {
		err = qerr
	}
	return err
}

// RegisterRoutes mounts reach routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// All reach routes require authentication
	m.handler.RegisterLeadRoutes(ctx.Protected.Group("/leads/:id/reach"))
	m.handler.RegisterWorkflowRoutes(ctx.Protected.Group("/reach"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
