package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Handler processes one decoded batch. A nil return commits the message.
type Handler func(ctx context.Context, b *enrollment.Batch) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads batch documents from a consumer group.
type KafkaConsumer struct {
	reader messageReader

	// Attempts is how many times a failing batch is handed to the handler
	// before Run gives up without committing.
	Attempts int
	// Backoff is the wait between attempts; it doubles after each failure.
	Backoff time.Duration
}

func NewKafkaConsumer(brokers []string, groupID, topic string) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: []string{topic},
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: reader, Attempts: 5, Backoff: 500 * time.Millisecond}, nil
}

// Run consumes until ctx is canceled or a batch keeps failing. Messages
// that do not decode are logged and committed; redelivering them cannot
// succeed.
func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg, h); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, h Handler) error {
	batch, err := enrollment.DecodeBatchJSON(msg.Value)
	if err != nil {
		slog.Error("dropping undecodable batch message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if batch.ID == "" {
		batch.ID = string(msg.Key)
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := c.Backoff
	for attempt := 1; ; attempt++ {
		err = h(ctx, batch)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("batch handler failed",
			"batch_id", batch.ID,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
		)
		if attempt >= attempts {
			return fmt.Errorf("batch %s failed after %d attempts: %w", batch.ID, attempt, err)
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
