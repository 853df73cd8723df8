// Package kafka publishes emitted signals to a Kafka topic for downstream
// consumers (alerting, order routers).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"auction_go/internal/domain"

	"github.com/IBM/sarama"
)

// SignalPublisher writes every signal as a JSON message keyed by symbol, so a
// symbol's signals land on one partition in emission order.
type SignalPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducerConfig returns the producer settings used for signal delivery.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_8_0_0
	return config
}

// NewSignalPublisher connects a sync producer to brokers.
func NewSignalPublisher(brokers []string, topic, clientID string, logger *slog.Logger) (*SignalPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig(clientID))
	if err != nil {
		return nil, domain.NewNetworkError("kafka connect", err)
	}
	return NewSignalPublisherWithProducer(producer, topic, logger), nil
}

// NewSignalPublisherWithProducer wraps an existing producer.
func NewSignalPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *SignalPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalPublisher{producer: producer, topic: topic, logger: logger}
}

// OnSignal publishes sig and waits for the broker acknowledgement.
func (p *SignalPublisher) OnSignal(ctx context.Context, sig domain.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", sig.ID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(sig.Symbol),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("signal_id"), Value: []byte(sig.ID)},
			{Key: []byte("signal_type"), Value: []byte(sig.Type)},
		},
		Timestamp: sig.Time,
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return domain.NewNetworkError("kafka publish", err)
	}

	p.logger.Debug("Signal published",
		slog.String("id", sig.ID),
		slog.String("topic", p.topic),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *SignalPublisher) Close() error {
	return p.producer.Close()
}

var _ domain.SignalSink = (*SignalPublisher)(nil)
