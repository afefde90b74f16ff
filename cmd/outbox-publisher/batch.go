package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/registry"
	"gorm.io/gorm"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeTerminal
)

// pending is one row of a batch between publish and settle.
type pending struct {
	event  models.OutboxEvent
	topic  string
	result publishResult
	err    error
}

// processBatch locks a batch of rows, hands every message to its publisher
// before waiting on any of them, then settles each row on its own result.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0

		waitCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
		batch := make([]pending, 0, len(events))
		for _, event := range events {
			batch = append(batch, s.send(waitCtx, event))
		}
		for i := range batch {
			if err := s.settle(ctx, tx, &batch[i], waitCtx); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent) pending {
	p := pending{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		p.err = err
		return p
	}
	p.topic = resolved.Descriptor.Topic

	pub := s.publishers.get(p.topic)
	if pub == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", p.topic))
		return p
	}
	p.result = pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"version":        strconv.Itoa(resolved.Envelope.Version),
		},
	})
	if p.result == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", p.topic))
	}
	return p
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, p *pending, waitCtx context.Context) error {
	if p.err == nil {
		_, p.err = p.result.Get(waitCtx)
	}
	next := s.classify(p)

	logCtx := s.logg.WithFields(ctx, p.fields())
	if p.err != nil {
		logCtx = s.logg.WithField(logCtx, "error", p.err.Error())
	}
	eventType := string(p.event.EventType)
	id := p.event.ID

	switch next {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		s.logg.Info(logCtx, "outbox.event_published")
		if s.metrics != nil {
			s.metrics.IncPublished(eventType)
		}
	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, id, p.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", id, err)
		}
		s.logg.Warn(logCtx, "outbox.publish_failed")
		if s.metrics != nil {
			s.metrics.IncFailed(eventType)
		}
	default:
		if err := s.repo.MarkTerminalTx(tx, id, p.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", id, err)
		}
		s.logg.Warn(logCtx, "outbox.event_terminal")
		if s.metrics != nil {
			s.metrics.IncTerminal(eventType)
		}
	}
	return nil
}

// classify decides the row's fate. Unresolvable rows and rows that have used
// their last attempt are parked.
func (s *Service) classify(p *pending) outcome {
	if p.err == nil {
		return outcomePublished
	}
	var permanent registry.NonRetryableError
	if errors.As(p.err, &permanent) || p.topic == "" {
		return outcomeTerminal
	}
	if p.event.AttemptCount+1 >= s.maxAttempts {
		p.err = fmt.Errorf("max publish attempts reached: %w", p.err)
		return outcomeTerminal
	}
	return outcomeRetry
}

func (p *pending) fields() map[string]any {
	fields := map[string]any{
		"outbox_id":      p.event.ID.String(),
		"event_type":     p.event.EventType,
		"aggregate_type": p.event.AggregateType,
		"aggregate_id":   p.event.AggregateID.String(),
		"attempt_count":  p.event.AttemptCount,
	}
	if p.topic != "" {
		fields["topic"] = p.topic
	}
	return fields
}
