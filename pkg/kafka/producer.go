package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

// RequestIDHeader carries the request id of the HTTP call that produced a
// message, so indexer logs line up with ingestion logs.
const RequestIDHeader = "request_id"

// Event is one keyed message. Value is encoded as JSON. Events with the same
// key land on the same partition in publish order.
type Event struct {
	Key   string
	Value any
}

// Producer writes events to one topic synchronously.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	codec, err := compression(cfg.Compression)
	if err != nil {
		slog.Warn("unknown kafka compression, sending uncompressed", "compression", cfg.Compression)
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           5 * time.Millisecond,
		MaxAttempts:            5,
		RequiredAcks:           kafka.RequireAll,
		Compression:            codec,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes and writes event, waiting for every in-sync replica. The
// request id of ctx, if any, travels as a header.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encode(ctx, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing %s: %w", event.Key, err)
	}
	p.logger.Debug("published", "key", event.Key, "bytes", len(msg.Value))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(ctx context.Context, event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %s: %w", event.Key, err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value}
	if id := logger.RequestID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: RequestIDHeader, Value: []byte(id)})
	}
	return msg, nil
}

func compression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}
