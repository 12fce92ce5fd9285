package notify

import (
	"context"
	"fmt"
	"time"

	"storefront-core/internal/domain"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publishers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a synchronous writer for topic. Messages are hashed on
// their key so every event of one order lands on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaNotifier publishes order events as JSON keyed by order id.
type KafkaNotifier struct {
	writer MessageWriter
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event domain.OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// KafkaLoyalty publishes loyalty accruals for the loyalty service to consume.
type KafkaLoyalty struct {
	writer MessageWriter
}

func NewKafkaLoyalty(writer MessageWriter) *KafkaLoyalty {
	return &KafkaLoyalty{writer: writer}
}

func (l *KafkaLoyalty) Accrue(ctx context.Context, accrual domain.LoyaltyAccrual) error {
	value, err := json.Marshal(accrual)
	if err != nil {
		return fmt.Errorf("failed to marshal loyalty accrual: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(accrual.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("LoyaltyAccrual")},
		},
		Time: accrual.AccruedAt,
	}
	if err := l.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish loyalty accrual for order %s: %w", accrual.OrderID, err)
	}
	return nil
}

func (l *KafkaLoyalty) Close() error {
	return l.writer.Close()
}
