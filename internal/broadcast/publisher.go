package broadcast

import (
	"context"

	"lanedesk/pkg/kafka"
	"lanedesk/pkg/logger"
)

const source = "lanedesk"

// Publisher pushes lane events after a committing transaction. It is
// deliberately not transactional: PublishState recomputes the full
// state from the store of record, and every publish is best-effort.
// A broadcast failure is logged and swallowed, never propagated into
// the operation that triggered it.
type Publisher interface {
	PublishState(ctx context.Context, laneID string)
	PublishEvent(ctx context.Context, laneID, eventType string, payload any)
}

type kafkaPublisher struct {
	projector   *Projector
	stateWriter *kafka.Producer
	eventWriter *kafka.Producer
	log         *logger.Logger
}

func NewKafkaPublisher(projector *Projector, stateWriter, eventWriter *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		projector:   projector,
		stateWriter: stateWriter,
		eventWriter: eventWriter,
		log:         log,
	}
}

func (p *kafkaPublisher) PublishState(ctx context.Context, laneID string) {
	state := p.projector.Project(ctx, laneID)

	msg, err := kafka.NewMessage().
		WithKey(laneID).
		WithValue(state).
		WithEventType(EventState).
		WithSource(source).
		Build()
	if err != nil {
		p.log.Error("Failed to build lane state message", "lane_id", laneID, "error", err)
		return
	}

	if err := p.stateWriter.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish lane state", "lane_id", laneID, "error", err)
	}
}

func (p *kafkaPublisher) PublishEvent(ctx context.Context, laneID, eventType string, payload any) {
	if payload == nil {
		payload = struct {
			LaneID string `json:"lane_id"`
		}{LaneID: laneID}
	}

	msg, err := kafka.NewMessage().
		WithKey(laneID).
		WithValue(payload).
		WithEventType(eventType).
		WithSource(source).
		Build()
	if err != nil {
		p.log.Error("Failed to build lane event", "lane_id", laneID, "event_type", eventType, "error", err)
		return
	}

	if err := p.eventWriter.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish lane event", "lane_id", laneID, "event_type", eventType, "error", err)
	}
}

// NopPublisher is the test double; tests that assert on emitted events
// use RecordingPublisher in the service test files instead.
type NopPublisher struct{}

func (NopPublisher) PublishState(ctx context.Context, laneID string) {}

func (NopPublisher) PublishEvent(ctx context.Context, laneID, eventType string, payload any) {}
