package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing score events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishBatchScored publishes one COMPANY_SCORED event per company followed
// by a BATCH_SCORED summary, in a single write
func (p *Producer) PublishBatchScored(ctx context.Context, batch *models.ScoredBatch) error {
	now := p.now()
	msgs := make([]kafka.Message, 0, len(batch.Companies)+1)

	for i := range batch.Companies {
		c := &batch.Companies[i]
		msg, err := p.message(c.Ticker, models.ScoreEvent{
			EventType:  models.EventCompanyScored,
			RunID:      batch.RunID,
			ScrapeDate: batch.ScrapeDate,
			Company:    c,
			Timestamp:  now,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	msg, err := p.message(batch.RunID, models.ScoreEvent{
		EventType:  models.EventBatchScored,
		RunID:      batch.RunID,
		ScrapeDate: batch.ScrapeDate,
		Status:     batch.Status,
		Failures:   batch.Failures,
		Timestamp:  now,
	})
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)

	return p.write(ctx, msgs...)
}

// PublishBatchFailed publishes a BATCH_FAILED event with the failure list
func (p *Producer) PublishBatchFailed(ctx context.Context, batch *models.ScoredBatch) error {
	msg, err := p.message(batch.RunID, models.ScoreEvent{
		EventType:  models.EventBatchFailed,
		RunID:      batch.RunID,
		ScrapeDate: batch.ScrapeDate,
		Status:     models.StatusFailed,
		Failures:   batch.Failures,
		Timestamp:  p.now(),
	})
	if err != nil {
		return err
	}
	return p.write(ctx, msg)
}

func (p *Producer) message(key string, event models.ScoreEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
	}, nil
}

func (p *Producer) write(ctx context.Context, msgs ...kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
