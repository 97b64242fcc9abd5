// Package events publishes completed conversation turns for the downstream
// persistence/analytics pipeline.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/wisegate/wisegate/pkg/log"
)

// TurnEvent describes one answered question.
type TurnEvent struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	UserMessageID   string    `json:"user_message_id"`
	AnswerMessageID string    `json:"answer_message_id"`
	KnowledgeBaseID string    `json:"knowledge_base_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// TurnProducer publishes turn events. Publishing is fire-and-forget from the
// orchestrator's point of view.
type TurnProducer interface {
	PublishTurn(ctx context.Context, event *TurnEvent) error
	Close() error
}

// NoopTurnProducer is used when kafka is not configured.
type NoopTurnProducer struct{}

func (NoopTurnProducer) PublishTurn(ctx context.Context, event *TurnEvent) error { return nil }

func (NoopTurnProducer) Close() error { return nil }

// ConfluentTurnProducer implements TurnProducer on kafka.
type ConfluentTurnProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewConfluentTurnProducer(brokers, topic string, partitions int) (*ConfluentTurnProducer, error) {
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure kafka topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentTurnProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go cp.deliveryReportHandler()

	return cp, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (cp *ConfluentTurnProducer) deliveryReportHandler() {
	l := log.L()
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l.Warn().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
			}
		}
	}
	close(cp.doneCh)
}

// PublishTurn produces one turn event keyed by session id, so turns of a
// conversation land on the same partition in order.
func (cp *ConfluentTurnProducer) PublishTurn(ctx context.Context, event *TurnEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	return cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &cp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.SessionID),
		Value:          data,
	}, nil)
}

func (cp *ConfluentTurnProducer) Close() error {
	cp.producer.Flush(5000)
	cp.producer.Close()

	select {
	case <-cp.doneCh:
	case <-time.After(5 * time.Second):
	}
	return nil
}
