package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/metrics"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = time.Second
	defaultMaxRetries   = 3
	maxErrorBackoff     = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error)
	FetchReady(ctx context.Context, limit int, now time.Time) ([]models.OutboxRecord, error)
	ClaimPublishing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, nextAttempt time.Time, cause error) error
	MarkTerminal(ctx context.Context, id uuid.UUID, cause error) error
}

type topicRouter interface {
	Topic(aggregate enums.AggregateType) string
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Router           topicRouter
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
}

// Service is the polling publisher: it drains ready outbox rows, routes
// each to its destination topic, and walks every row through exactly one
// status transition per attempt.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	router           topicRouter
	metrics          *metrics.OutboxMetrics
	publisherFactory publisherFactory
	batchSize        int
	maxRetries       int
	pollInterval     time.Duration
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	publishTimeout   time.Duration
	stuckTimeout     time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Router == nil {
		return nil, errors.New("topic router is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			pub := params.PubSub.Publisher(topic)
			if pub == nil {
				return nil
			}
			return newGCPPublisher(pub)
		}
	}

	outboxCfg := params.Config.Outbox
	batch := outboxCfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := outboxCfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxRetries := outboxCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		router:           params.Router,
		metrics:          params.Metrics,
		publisherFactory: factory,
		batchSize:        batch,
		maxRetries:       maxRetries,
		pollInterval:     poll,
		initialBackoff:   outboxCfg.InitialBackoff,
		maxBackoff:       outboxCfg.MaxBackoff,
		publishTimeout:   outboxCfg.PublishTimeout,
		stuckTimeout:     outboxCfg.StuckTimeout,
		now:              time.Now,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls until the context is canceled. A batch error backs the loop
// off exponentially; a drained batch keeps polling without sleeping.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextErrorBackoff(backoff, interval, maxErrorBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch requeues stuck rows, then attempts every ready row. Each
// row is handled in isolation: one bad row never blocks the rest of the
// batch.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	now := s.now().UTC()

	released, err := s.repo.ReleaseStuck(ctx, now.Add(-s.stuckTimeout))
	if err != nil {
		return false, fmt.Errorf("release stuck: %w", err)
	}
	if released > 0 {
		logCtx := s.logg.WithField(ctx, "rows_released", released)
		s.logg.Warn(logCtx, "requeued events stranded in publishing")
	}

	rows, err := s.repo.FetchReady(ctx, s.batchSize, now)
	if err != nil {
		return false, fmt.Errorf("fetch ready: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	for _, row := range rows {
		s.processRow(ctx, row)
	}
	return true, nil
}

func (s *Service) processRow(ctx context.Context, row models.OutboxRecord) {
	claimed, err := s.repo.ClaimPublishing(ctx, row.ID)
	if err != nil {
		s.logg.Error(s.eventCtx(ctx, row, ""), "claim failed", err)
		return
	}
	if !claimed {
		// Another publisher instance won the row.
		return
	}

	topic := s.router.Topic(row.AggregateType)
	logCtx := s.eventCtx(ctx, row, topic)

	if err := s.publishRow(ctx, row, topic); err != nil {
		s.handlePublishFailure(ctx, logCtx, row, topic, err)
		return
	}

	if err := s.repo.MarkPublished(ctx, row.ID); err != nil {
		s.logg.Error(logCtx, "mark published failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncPublished(topic)
	}
	s.logg.Info(logCtx, "outbox event published")
}

func (s *Service) handlePublishFailure(ctx, logCtx context.Context, row models.OutboxRecord, topic string, cause error) {
	nextRetry := row.RetryCount + 1
	logCtx = s.logg.WithField(logCtx, "error", cause.Error())

	if nextRetry >= s.maxRetries {
		logCtx = s.logg.WithField(logCtx, "retry_count", nextRetry)
		s.logg.Warn(logCtx, "retries exhausted; parking event as failed")
		if err := s.repo.MarkTerminal(ctx, row.ID, cause); err != nil {
			s.logg.Error(logCtx, "mark terminal failed", err)
			return
		}
		if s.metrics != nil {
			s.metrics.IncTerminal(topic)
		}
		return
	}

	delay := outbox.BackoffDelay(s.initialBackoff, s.maxBackoff, row.RetryCount)
	nextAttempt := s.now().UTC().Add(delay)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"retry_count":  nextRetry,
		"next_attempt": nextAttempt.Format(time.RFC3339Nano),
	})
	s.logg.Warn(logCtx, "outbox publish failed; scheduling retry")
	if err := s.repo.MarkRetry(ctx, row.ID, nextRetry, nextAttempt, cause); err != nil {
		s.logg.Error(logCtx, "mark retry failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncRetried(topic)
	}
}

func (s *Service) publishRow(ctx context.Context, row models.OutboxRecord, topic string) error {
	pub := s.publisherFactory(topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", topic)
	}

	attributes := map[string]string{
		"event_type":     string(row.EventType),
		"event_version":  row.EventVersion,
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    row.OccurredAt.Format(time.RFC3339Nano),
	}
	if envelope, err := outbox.DecodeEnvelope(row.Payload); err == nil && envelope.EventID != "" {
		attributes["event_id"] = envelope.EventID
	}
	for key, value := range row.Headers {
		if _, reserved := attributes[key]; !reserved {
			attributes[key] = value
		}
	}

	msg := &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  attributes,
		OrderingKey: row.AggregateID.String(),
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	start := s.now()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", topic)
	}
	_, err := result.Get(publishCtx)
	if s.metrics != nil {
		s.metrics.ObservePublishDuration(s.now().Sub(start))
	}
	return err
}

func (s *Service) eventCtx(ctx context.Context, row models.OutboxRecord, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"retry_count":    row.RetryCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextErrorBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
