package kafka_middleware

import (
	"context"
	"time"

	"lanedesk/pkg/kafka"
	"lanedesk/pkg/logger"
)

func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		if err != nil {
			log.Error("Failed to publish message",
				"topic", msg.Topic,
				"key", msg.Key,
				"event_type", msg.EventType(),
				"event_id", msg.EventID(),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
			return err
		}
		log.Debug("Published message",
			"topic", msg.Topic,
			"key", msg.Key,
			"event_type", msg.EventType(),
			"event_id", msg.EventID(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}

func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		if err != nil {
			log.Error("Failed to process message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"event_type", msg.EventType(),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
			return err
		}
		log.Debug("Processed message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"event_type", msg.EventType(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}
