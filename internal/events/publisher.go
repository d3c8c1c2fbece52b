package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishChargeOutcome writes event keyed by customer so a customer's
// outcomes stay ordered within a partition.
func (p *KafkaPublisher) PublishChargeOutcome(ctx context.Context, event *models.BillingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal billing event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CustomerID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish billing event: %w", err)
	}

	telemetry.Logger.Debug("Published charge outcome",
		zap.String("customer_id", event.CustomerID),
		zap.String("product_id", event.ProductID),
		zap.String("outcome", string(event.Outcome)),
	)
	return nil
}

// NoopPublisher drops every event. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishChargeOutcome(context.Context, *models.BillingEvent) error {
	return nil
}
