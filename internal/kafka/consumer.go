package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// ErrNoBatch is returned when a completed scrape event carries no batch
var ErrNoBatch = errors.New("scrape event has no batch")

// RunRepository defines the lookup the consumer needs for idempotency
type RunRepository interface {
	RunExistsForBatch(batchID string) (bool, error)
}

// BatchProcessor scores and delivers one scrape batch
type BatchProcessor interface {
	Run(ctx context.Context, batch models.ScrapeBatch) (*models.ScoredBatch, error)
}

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer handles consuming scrape events from Kafka
type Consumer struct {
	reader    messageReader
	topic     string
	repo      RunRepository
	processor BatchProcessor
	log       zerolog.Logger
}

// NewConsumer creates a new Kafka consumer for scrape events
func NewConsumer(brokers []string, topic, groupID string, repo RunRepository, processor BatchProcessor, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:    reader,
		topic:     topic,
		repo:      repo,
		processor: processor,
		log:       log.With().Str("module", "kafka").Logger(),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.topic).Msg("starting kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	c.log.Debug().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Msg("received message")

	var event models.ScrapeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal scrape event: %w", err)
	}

	batch, ok, err := batchFromEvent(event)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Info().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	if batch.ID != "" {
		exists, err := c.repo.RunExistsForBatch(batch.ID)
		if err != nil {
			return fmt.Errorf("failed to check for scored batch: %w", err)
		}
		if exists {
			c.log.Info().Str("batch_id", batch.ID).Msg("batch already scored, skipping")
			return nil
		}
	}

	result, err := c.processor.Run(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to process batch %s: %w", batch.ID, err)
	}

	c.log.Info().
		Str("batch_id", batch.ID).
		Str("run_id", result.RunID).
		Str("status", result.Status).
		Msg("processed scrape batch")
	return nil
}

// batchFromEvent extracts the batch to process. A failed scrape becomes an
// unsuccessful batch so it is still recorded and delivered as such.
func batchFromEvent(event models.ScrapeEvent) (models.ScrapeBatch, bool, error) {
	switch event.EventType {
	case models.EventScrapeCompleted:
		if event.Batch == nil {
			return models.ScrapeBatch{}, false, ErrNoBatch
		}
		return *event.Batch, true, nil
	case models.EventScrapeFailed:
		var batch models.ScrapeBatch
		if event.Batch != nil {
			batch = *event.Batch
		}
		if batch.ScrapeDate.IsZero() {
			batch.ScrapeDate = event.Timestamp
		}
		batch.Success = false
		return batch, true, nil
	default:
		return models.ScrapeBatch{}, false, nil
	}
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
