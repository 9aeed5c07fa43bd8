package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-rental/internal/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. Returning an error wrapped with Retry leaves
// the message uncommitted so it is redelivered; any other error is logged and
// the message is skipped.
type Handler func(ctx context.Context, msg kafka.Message) error

type retryError struct{ err error }

func (e retryError) Error() string { return e.err.Error() }
func (e retryError) Unwrap() error { return e.err }

// Retry marks err as transient.
func Retry(err error) error {
	if err == nil {
		return nil
	}
	return retryError{err: err}
}

func IsRetry(err error) bool {
	var r retryError
	return errors.As(err, &r)
}

type Consumer struct {
	Reader     MessageReader
	Topic      string
	Logger     *logger.Logger
	RetryDelay time.Duration
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return NewConsumerWithReader(reader, topic, log)
}

func NewConsumerWithReader(r MessageReader, topic string, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{Reader: r, Topic: topic, Logger: log, RetryDelay: 2 * time.Second}
}

// Start consumes until ctx is done. It returns nil on cancellation.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	c.Logger.LogKafka("CONSUME", c.Topic, "consumer started")

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.Logger.LogKafka("CONSUME", c.Topic, "consumer stopped")
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("read from %s: %v", c.Topic, err))
			if !sleep(ctx, c.RetryDelay) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, handle, msg); err != nil {
			if !sleep(ctx, c.RetryDelay) {
				return nil
			}
		}
	}
}

// process runs handle until it succeeds or fails permanently, then commits.
func (c *Consumer) process(ctx context.Context, handle Handler, msg kafka.Message) error {
	for {
		err := handle(ctx, msg)
		if IsRetry(err) {
			c.Logger.Warn("KAFKA", fmt.Sprintf("retrying %s@%d: %v", c.Topic, msg.Offset, err))
			if !sleep(ctx, c.RetryDelay) {
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("skipping %s@%d: %v", c.Topic, msg.Offset, err))
		}
		if cerr := c.Reader.CommitMessages(ctx, msg); cerr != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("commit %s@%d: %v", c.Topic, msg.Offset, cerr))
			return cerr
		}
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
