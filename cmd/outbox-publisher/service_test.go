package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderPaidRow(t, 0), orderPaidRow(t, 0)}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	counter := &fakeCounter{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOrderPaid()}, counter, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if counter.published != 1 || counter.failed != 1 || counter.terminal != 0 {
		t.Fatalf("unexpected counters %+v", counter)
	}
}

func TestServiceProcessBatchSetsMessageAttributes(t *testing.T) {
	row := orderPaidRow(t, 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{row}}, pub, &fakeRegistry{resolved: resolvedOrderPaid()}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_type"] != string(enums.EventOrderPaid) {
		t.Fatalf("unexpected event_type %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != row.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id %q", attrs["aggregate_id"])
	}
	if attrs["event_id"] != row.ID.String() {
		t.Fatalf("unexpected event_id %q", attrs["event_id"])
	}
	if string(pub.messages[0].Data) != string(row.Payload) {
		t.Fatalf("message body should be the stored envelope")
	}
}

func TestServiceProcessBatchParksUnresolvableRows(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderPaidRow(t, 0)}}
	counter := &fakeCounter{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, counter, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal row, got %d", len(repo.terminal))
	}
	if len(repo.failed) != 0 || len(repo.published) != 0 {
		t.Fatalf("terminal row must not be marked failed or published")
	}
	if counter.terminal != 1 {
		t.Fatalf("expected terminal counter, got %+v", counter)
	}
}

func TestServiceProcessBatchParksAfterMaxAttempts(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderPaidRow(t, 1)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOrderPaid()}, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row parked after max attempts, got %d", len(repo.terminal))
	}
	if len(repo.failed) != 0 {
		t.Fatalf("parked row should not also be marked failed")
	}
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, nil, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("empty batch should not report processed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(base, base, maxBackoff); got != time.Second {
		t.Fatalf("expected doubling, got %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, counter resultCounter, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 10, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	params := ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(string) publisher { return pub },
	}
	if counter != nil {
		params.Metrics = counter
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func orderPaidRow(tb testing.TB, attempts int) models.OutboxEvent {
	tb.Helper()
	id := uuid.New()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{"order_id":"` + uuid.NewString() + `"}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateCustomerOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

func resolvedOrderPaid() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateCustomerOrder,
			Topic:         "tp-order-events",
		},
		Envelope: outbox.PayloadEnvelope{Version: 1},
		Payload:  &payloads.OrderPaidEvent{},
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

type fakeCounter struct {
	published, failed, terminal int
}

func (f *fakeCounter) IncPublished(string) { f.published++ }
func (f *fakeCounter) IncFailed(string)    { f.failed++ }
func (f *fakeCounter) IncTerminal(string)  { f.terminal++ }

func TestTopicPublishersReuseAndStop(t *testing.T) {
	calls := 0
	stopped := &stoppingPublisher{}
	pubs := newTopicPublishers(func(topic string) publisher {
		calls++
		if topic == "missing" {
			return nil
		}
		return stopped
	})

	if pubs.get("tp-order-events") != pubs.get("tp-order-events") {
		t.Fatalf("expected the same publisher for a topic")
	}
	if pubs.get("missing") != nil || pubs.get("missing") != nil {
		t.Fatalf("expected nil publisher for unknown topic")
	}
	if calls != 3 {
		t.Fatalf("expected factory called once for the cached topic and each miss, got %d", calls)
	}
	pubs.stop()
	if stopped.stops != 1 {
		t.Fatalf("expected publisher stopped once, got %d", stopped.stops)
	}
	if len(pubs.byTopic) != 0 {
		t.Fatalf("expected cache cleared after stop")
	}
}

func TestNewServiceListsMissingDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	if err == nil {
		t.Fatalf("expected error for empty params")
	}
	want := "outbox publisher: missing [config database client event registry logger outbox repository pubsub client]"
	if err.Error() != want {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

type stoppingPublisher struct {
	stops int
}

func (s *stoppingPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	return fakePublishResult{}
}

func (s *stoppingPublisher) Stop() { s.stops++ }

type backlogRepo struct {
	fakeRepo
	backlog outbox.Backlog
	reads   int
}

func (b *backlogRepo) Backlog(context.Context) (outbox.Backlog, error) {
	b.reads++
	return b.backlog, nil
}

type backlogCounter struct {
	fakeCounter
	pending, terminal int64
	age               time.Duration
}

func (b *backlogCounter) SetBacklog(pending, terminal int64, age time.Duration) {
	b.pending, b.terminal, b.age = pending, terminal, age
}

func TestSampleBacklogThrottles(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-2 * time.Minute)
	repo := &backlogRepo{backlog: outbox.Backlog{Pending: 3, Terminal: 1, OldestPending: &oldest}}
	gauge := &backlogCounter{}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{}, gauge, nil)
	service.now = func() time.Time { return now }

	service.sampleBacklog(context.Background())
	if gauge.pending != 3 || gauge.terminal != 1 || gauge.age != 2*time.Minute {
		t.Fatalf("unexpected backlog sample %+v", gauge)
	}
	service.sampleBacklog(context.Background())
	if repo.reads != 1 {
		t.Fatalf("expected second sample throttled, reads=%d", repo.reads)
	}
	now = now.Add(backlogSampleEvery)
	service.sampleBacklog(context.Background())
	if repo.reads != 2 {
		t.Fatalf("expected sample after the interval, reads=%d", repo.reads)
	}
}
