package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/model"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReconcileProducer publishes reconcile events keyed by claim id.
type ReconcileProducer struct {
	w messageWriter
}

func NewReconcileProducer(brokers []string, topic string) *ReconcileProducer {
	return &ReconcileProducer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *ReconcileProducer) Report(ctx context.Context, ev model.ReconcileEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal reconcile event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Claim.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind.String())},
		},
	})
}

func (p *ReconcileProducer) Close() error { return p.w.Close() }
