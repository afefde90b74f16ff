package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	backlogSampleEvery    = 30 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type resultCounter interface {
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncTerminal(eventType string)
}

// Repositories and metrics that also implement these get a backlog sample
// while the publisher is idle.
type backlogReader interface {
	Backlog(ctx context.Context) (outbox.Backlog, error)
}

type backlogGauge interface {
	SetBacklog(pending, terminal int64, oldestAge time.Duration)
}

// ServiceParams wires the publisher loop. Metrics and PublisherFactory are
// optional.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	Metrics          resultCounter
	PublisherFactory publisherFactory
}

// Service drains committed outbox rows to Pub/Sub.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	metrics      resultCounter
	publishers   *topicPublishers
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration

	backlog     backlogReader
	gauge       backlogGauge
	lastSampled time.Time
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	var missing []string
	for name, absent := range map[string]bool{
		"config":            params.Config == nil,
		"logger":            params.Logger == nil,
		"database client":   params.DB == nil,
		"pubsub client":     params.PubSub == nil,
		"outbox repository": params.Repository == nil,
		"event registry":    params.Registry == nil,
	} {
		if absent {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("outbox publisher: missing %v", missing)
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	cfg := params.Config.Outbox
	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publishers:   newTopicPublishers(factory),
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		now:          time.Now,
	}
	svc.backlog, _ = params.Repository.(backlogReader)
	svc.gauge, _ = params.Metrics.(backlogGauge)
	return svc, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; a failed batch backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "outbox.database_unreachable", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "outbox.pubsub_unreachable", err)
		return fmt.Errorf("pubsub ping: %w", err)
	}
	defer s.publishers.stop()

	wait := newPoller(s.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.publisher_stopped")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			err = wait.afterFailure(ctx)
		case processed:
			wait.reset()
		default:
			wait.reset()
			s.sampleBacklog(ctx)
			err = wait.idle(ctx)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logg.Info(ctx, "outbox.publisher_stopped")
			}
			return err
		}
	}
}

// sampleBacklog refreshes the backlog gauges at most every
// backlogSampleEvery.
func (s *Service) sampleBacklog(ctx context.Context) {
	if s.backlog == nil || s.gauge == nil {
		return
	}
	now := s.now()
	if !s.lastSampled.IsZero() && now.Sub(s.lastSampled) < backlogSampleEvery {
		return
	}
	s.lastSampled = now

	b, err := s.backlog.Backlog(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox.backlog_sample_failed")
		return
	}
	var age time.Duration
	if b.OldestPending != nil {
		age = now.Sub(*b.OldestPending)
	}
	s.gauge.SetBacklog(b.Pending, b.Terminal, age)
}
