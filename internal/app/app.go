// Package app is the composition root: it turns a Config into a running wizard
// service with its storage, audit and metrics backends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"sprout/internal/flows"
	"sprout/internal/platform/config"
	"sprout/internal/platform/kafka"
	"sprout/internal/platform/metrics"
	platformredis "sprout/internal/platform/redis"
	"sprout/internal/wizard/accumulator"
	"sprout/internal/wizard/attachment"
	wizardmetrics "sprout/internal/wizard/metrics"
	"sprout/internal/wizard/sequencer"
	"sprout/internal/wizard/service"
	"sprout/internal/wizard/store"
	"sprout/internal/wizard/submission"
	"sprout/internal/wizard/validation"
	audit "sprout/pkg/platform/audit"
	"sprout/pkg/platform/audit/publisher"
	"sprout/pkg/platform/audit/store/failover"
	auditmemory "sprout/pkg/platform/audit/store/memory"
	"sprout/pkg/platform/circuit"
)

// Collaborators are the services the wizard calls out to. Only Registrar is
// required.
type Collaborators struct {
	Registrar submission.Registrar
	Ingestor  submission.Ingestor
	Status    submission.StatusProvider
	Previewer attachment.Previewer
}

// App owns every long-lived resource built from the configuration.
type App struct {
	Service  *service.Service
	Flows    *flows.Catalog
	Registry *prometheus.Registry
	// AuditLog holds audit events locally. With Kafka configured it only
	// receives what the broker could not take.
	AuditLog *auditmemory.InMemoryStore

	audit    *publisher.Publisher
	failover *failover.Store
	redis    *platformredis.Client
	producer *kafka.Producer
	logger   *slog.Logger
}

// New wires the wizard. On error every resource opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, c Collaborators) (_ *App, err error) {
	if c.Registrar == nil {
		return nil, errors.New("registrar is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if c.Ingestor == nil {
		c.Ingestor = attachment.DigestIngestor{}
	}
	if c.Previewer == nil {
		c.Previewer = attachment.HandlePreviewer{}
	}

	a := &App{
		Registry: metrics.NewRegistry(),
		AuditLog: auditmemory.NewInMemoryStore(),
		logger:   logger,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Flows, err = flows.Load()
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}

	sessions, err := a.sessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	auditStore, err := a.auditStore(cfg)
	if err != nil {
		return nil, err
	}
	a.audit = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(logger),
	)

	var m *wizardmetrics.Metrics
	if cfg.Metrics.Enabled {
		m = wizardmetrics.New(a.Registry)
	}

	engine := validation.NewEngine()
	attachments := attachment.New(
		attachment.WithPreviewer(c.Previewer),
		attachment.WithPreviewTimeout(cfg.Wizard.PreviewTimeout),
		attachment.WithLogger(logger),
	)
	acc, err := accumulator.New(engine)
	if err != nil {
		return nil, err
	}
	seq, err := sequencer.New(engine, attachments)
	if err != nil {
		return nil, err
	}
	coord, err := submission.New(c.Registrar, c.Ingestor, attachments, seq,
		submission.WithTimeout(cfg.Wizard.SubmissionTimeout),
		submission.WithIngestConcurrency(cfg.Wizard.IngestConcurrency),
		submission.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAuditPublisher(a.audit),
		service.WithMetrics(m),
	}
	if c.Status != nil {
		opts = append(opts, service.WithStatusProvider(c.Status))
	}
	a.Service, err = service.New(a.Flows, sessions, service.Components{
		Accumulator: acc,
		Sequencer:   seq,
		Attachments: attachments,
		Coordinator: coord,
	}, opts...)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "wizard ready",
		"flows", len(a.Flows.IDs()),
		"session_store", storeKind(a.redis != nil),
		"audit_sink", sinkKind(a.producer != nil),
	)
	return a, nil
}

func (a *App) sessionStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return store.NewInMemory(), nil
	}
	a.redis = client
	return store.NewRedis(client.Client,
		store.WithTTL(cfg.Wizard.SessionTTL),
		store.WithKeyPrefix(cfg.Redis.KeyPrefix),
	), nil
}

// auditStore sends events to Kafka when brokers are configured and falls back
// to the local log while the broker is failing.
func (a *App) auditStore(cfg config.Config) (audit.Store, error) {
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		return a.AuditLog, nil
	}
	a.producer = producer
	breaker := circuit.New("kafka_audit",
		circuit.WithFailureThreshold(cfg.Audit.FailureThreshold),
		circuit.WithCooldown(cfg.Audit.BreakerCooldown),
	)
	a.failover = failover.New(kafka.NewAuditSink(producer), a.AuditLog,
		failover.WithBreaker(breaker),
		failover.WithLogger(a.logger),
	)
	return a.failover, nil
}

// AuditDegraded reports whether audit events are currently kept locally
// instead of reaching Kafka.
func (a *App) AuditDegraded() bool {
	return a.failover != nil && a.failover.Degraded()
}

// Health checks the external backends that are configured.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka ping failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close waits for in-flight work, drains the audit buffer and closes the
// backends, in that order.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.audit != nil {
		a.audit.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
}

func storeKind(redis bool) string {
	if redis {
		return "redis"
	}
	return "memory"
}

func sinkKind(kafka bool) string {
	if kafka {
		return "kafka"
	}
	return "memory"
}
