package kafka_config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvKafkaBrokers            = "LANEDESK_KAFKA_BROKERS"
	EnvKafkaStateTopic         = "LANEDESK_KAFKA_STATE_TOPIC"
	EnvKafkaEventTopic         = "LANEDESK_KAFKA_EVENT_TOPIC"
	EnvKafkaDLQTopic           = "LANEDESK_KAFKA_DLQ_TOPIC"
	EnvKafkaProducerAttempts   = "LANEDESK_KAFKA_PRODUCER_MAX_ATTEMPTS"
	EnvKafkaProducerBatchWait  = "LANEDESK_KAFKA_PRODUCER_BATCH_TIMEOUT"
	EnvKafkaConsumerGroup      = "LANEDESK_KAFKA_CONSUMER_GROUP"
	EnvKafkaConsumerMinBytes   = "LANEDESK_KAFKA_CONSUMER_MIN_BYTES"
	EnvKafkaConsumerMaxBytes   = "LANEDESK_KAFKA_CONSUMER_MAX_BYTES"
	EnvKafkaConsumerMaxWait    = "LANEDESK_KAFKA_CONSUMER_MAX_WAIT"
	EnvKafkaConsumerMaxRetries = "LANEDESK_KAFKA_CONSUMER_MAX_RETRIES"
)

const (
	DefaultKafkaBrokers         = "localhost:9092"
	DefaultStateTopic           = "lane-session-state"
	DefaultEventTopic           = "lane-session-events"
	DefaultDLQTopic             = "lane-session-dlq"
	DefaultConsumerGroup        = "lanedesk-observers"
	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultConsumerMinBytes     = 1
	DefaultConsumerMaxBytes     = 10 << 20
	DefaultConsumerMaxWait      = 500 * time.Millisecond
	DefaultConsumerMaxRetries   = 3
)

type Config struct {
	Brokers []string

	StateTopic string
	EventTopic string
	DLQTopic   string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration

	ConsumerGroup      string
	ConsumerMinBytes   int
	ConsumerMaxBytes   int
	ConsumerMaxWait    time.Duration
	ConsumerMaxRetries int
}

func Load() (*Config, error) {
	brokers := strings.Split(getEnvStr(EnvKafkaBrokers, DefaultKafkaBrokers), ",")
	for i, b := range brokers {
		brokers[i] = strings.TrimSpace(b)
	}

	cfg := &Config{
		Brokers: brokers,

		StateTopic: getEnvStr(EnvKafkaStateTopic, DefaultStateTopic),
		EventTopic: getEnvStr(EnvKafkaEventTopic, DefaultEventTopic),
		DLQTopic:   getEnvStr(EnvKafkaDLQTopic, DefaultDLQTopic),

		ProducerMaxAttempts:  getEnvInt(EnvKafkaProducerAttempts, DefaultProducerMaxAttempts),
		ProducerBatchTimeout: getEnvDuration(EnvKafkaProducerBatchWait, DefaultProducerBatchTimeout),

		ConsumerGroup:      getEnvStr(EnvKafkaConsumerGroup, DefaultConsumerGroup),
		ConsumerMinBytes:   getEnvInt(EnvKafkaConsumerMinBytes, DefaultConsumerMinBytes),
		ConsumerMaxBytes:   getEnvInt(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes),
		ConsumerMaxWait:    getEnvDuration(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait),
		ConsumerMaxRetries: getEnvInt(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if len(cfg.Brokers) == 0 || cfg.Brokers[0] == "" {
		return fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.StateTopic == "" || cfg.EventTopic == "" {
		return fmt.Errorf("state and event topics cannot be empty")
	}
	if cfg.ProducerMaxAttempts <= 0 {
		return fmt.Errorf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts)
	}
	if cfg.ConsumerMaxBytes < cfg.ConsumerMinBytes {
		return fmt.Errorf("ConsumerMaxBytes (%d) must be >= ConsumerMinBytes (%d)", cfg.ConsumerMaxBytes, cfg.ConsumerMinBytes)
	}
	return nil
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
