// Package kafka publishes the audit stream of event and registration changes.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Shivanand-hulikatti/campus-events/internal/config"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
)

type Producer interface {
	PublishEventLifecycle(ctx context.Context, msg EventLifecycleMessage) error
	PublishRegistration(ctx context.Context, msg RegistrationMessage) error
	Close() error
}

// NewSyncProducer dials the brokers in cfg.
func NewSyncProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.ClientID
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.ProducerRequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.ProducerRetryMax
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true

	prod, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return prod, nil
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	logger   logger.Logger
	now      func() time.Time
}

func NewProducer(producer sarama.SyncProducer, l logger.Logger) Producer {
	return &kafkaProducer{
		producer: producer,
		logger:   l,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *kafkaProducer) PublishEventLifecycle(ctx context.Context, msg EventLifecycleMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = p.now()
	}
	return p.publish(TopicEventLifecycle, msg.Event.ID, msg.Action, msg)
}

func (p *kafkaProducer) PublishRegistration(ctx context.Context, msg RegistrationMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = p.now()
	}
	return p.publish(TopicRegistrationStatus, msg.EventID, string(msg.To), msg)
}

// publish keys every message by event id so one event's history stays in
// order on a single partition.
func (p *kafkaProducer) publish(topic, key, kind string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("timestamp"), Value: []byte(p.now().Format(time.RFC3339))},
			{Key: []byte("kind"), Value: []byte(kind)},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.logger.Error("Failed to send kafka message", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.logger.Debug("Kafka message sent",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", key,
	)
	return nil
}

func (p *kafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

// NoopProducer logs messages at debug level and drops them. It stands in
// when KAFKA_ENABLED is false.
type NoopProducer struct {
	Logger logger.Logger
}

func (p NoopProducer) PublishEventLifecycle(ctx context.Context, msg EventLifecycleMessage) error {
	if p.Logger != nil {
		p.Logger.Debug("event lifecycle", "action", msg.Action, "event_id", msg.Event.ID)
	}
	return nil
}

func (p NoopProducer) PublishRegistration(ctx context.Context, msg RegistrationMessage) error {
	if p.Logger != nil {
		p.Logger.Debug("registration status", "registration_id", msg.RegistrationID, "to", msg.To)
	}
	return nil
}

func (NoopProducer) Close() error { return nil }
