package audit

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaPublisher writes outcomes keyed by routing key so that all outcomes of
// one kind and state land on the same partition.
type kafkaPublisher struct {
	writer *kafka.Writer
}

func newKafkaPublisher(brokers []string, topic string) *kafkaPublisher {
	return &kafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (p *kafkaPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := encode(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(routingKey),
		Value: body,
		Time:  time.Now(),
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}
