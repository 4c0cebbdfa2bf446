package kafka

import (
	"context"
	"time"

	"github.com/jmehdipour/coin-faucet/internal/config"
	"github.com/segmentio/kafka-go"
)

type Message = kafka.Message

// Consumer reads one topic in a consumer group with explicit commits, so a
// worker only advances past messages it has fully handled.
type Consumer struct {
	r     *kafka.Reader
	topic string
	group string
}

// NewConsumer joins group "<kafka.group_id>-<role>" on topic. Each worker
// role gets its own group and therefore its own offsets.
func NewConsumer(kc config.KafkaConfig, topic, role string) *Consumer {
	group := kc.GroupID
	if group == "" {
		group = "faucet"
	}
	if role != "" {
		group += "-" + role
	}

	minBytes := kc.MinBytes
	if minBytes <= 0 {
		minBytes = 1 << 10 // 1KB
	}
	maxBytes := kc.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20 // 10MB
	}
	ci := time.Duration(kc.CommitInterval) * time.Millisecond
	if ci <= 0 {
		ci = time.Second
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kc.Brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: ci,
		MaxWait:        50 * time.Millisecond,
	})

	return &Consumer{r: r, topic: topic, group: group}
}

func (c *Consumer) Topic() string { return c.topic }
func (c *Consumer) Group() string { return c.group }

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, msgs ...Message) error {
	return c.r.CommitMessages(ctx, msgs...)
}

func (c *Consumer) Close() error { return c.r.Close() }
