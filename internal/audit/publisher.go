package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/observability"
)

// Publisher publishes settled action outcomes to an external audit stream.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Config selects and configures the audit backend.
// AMQP wins over Kafka when both are set; neither means noop.
type Config struct {
	AMQPURL      string
	Exchange     string
	KafkaBrokers []string
	KafkaTopic   string
}

// New builds the configured publisher. Backend failures at startup fall back
// to a noop publisher so that auditing never blocks messaging.
func New(cfg Config, logger *zerolog.Logger) Publisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	switch {
	case cfg.AMQPURL != "":
		p, err := newAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq disabled, using noop")
			return noopPublisher{reason: err.Error(), log: logger}
		}
		logger.Info().Str("exchange", cfg.Exchange).Msg("rabbitmq connected")
		return instrumented{p}
	case len(cfg.KafkaBrokers) > 0:
		if cfg.KafkaTopic == "" {
			logger.Warn().Msg("kafka disabled, using noop: empty topic")
			return noopPublisher{reason: "empty kafka topic", log: logger}
		}
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka writer configured")
		return instrumented{newKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)}
	default:
		logger.Debug().Msg("audit disabled, using noop")
		return noopPublisher{reason: "no audit backend configured", log: logger}
	}
}

// Mode reports the publisher backend for logging.
func Mode(p Publisher) string {
	if i, ok := p.(instrumented); ok {
		p = i.Publisher
	}
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case *kafkaPublisher:
		return "kafka"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// NoopReason explains why a noop publisher was chosen.
func NoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}

func encode(event any) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return body, nil
}

// instrumented counts publish failures.
type instrumented struct {
	Publisher
}

func (i instrumented) Publish(ctx context.Context, routingKey string, event any) error {
	err := i.Publisher.Publish(ctx, routingKey, event)
	if err != nil {
		observability.IncAuditPublishError()
	}
	return err
}

type noopPublisher struct {
	reason string
	log    *zerolog.Logger
}

func (n noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	if n.log != nil {
		n.log.Debug().Str("routing_key", routingKey).Msg("audit noop publish")
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}
