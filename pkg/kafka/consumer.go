// Package kafka carries ingest events from the ingestion service to the
// indexer over segmentio/kafka-go. Producers write JSON values keyed by
// document id; the consumer retries a failing handler before moving on.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/resilience"
)

// Outcomes recorded per message.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MessageHandler processes one message. Returning an error marked with
// resilience.Permanent rejects the message without retrying.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group. Every fetched
// message is committed once handled, whatever the outcome, so one bad
// document cannot stall its partition.
type Consumer struct {
	reader  messageReader
	handler MessageHandler
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type ConsumerOption func(*Consumer)

func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(r, topic, handler, cfg.HandlerAttempts, opts...)
}

func newConsumer(r messageReader, topic string, handler MessageHandler, attempts int, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx ends, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		outcome := c.handle(ctx, msg)
		if ctx.Err() != nil {
			// left uncommitted so the group redelivers it
			return nil
		}
		if c.metrics != nil {
			c.metrics.IngestMessagesTotal.WithLabelValues(outcome).Inc()
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == RequestIDHeader {
			ctx = logger.WithRequestID(ctx, string(h.Value))
		}
	}
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}
	log.Debug("message received", "bytes", len(msg.Value))

	err := resilience.Retry(ctx, "handle message", c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	switch {
	case err == nil:
		return OutcomeOK
	case resilience.IsPermanent(err):
		log.Warn("message rejected", "error", err)
		return OutcomeRejected
	default:
		log.Error("message failed", "error", err)
		return OutcomeFailed
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
