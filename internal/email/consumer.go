package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// messageSource is the subset of *kafka.Consumer the mailer uses
type messageSource interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

// messageSink is the subset of *kafka.Producer used for the DLQ
type messageSink interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Consumer reads email events from Kafka and sends them
type Consumer struct {
	source           messageSource
	dlq              messageSink
	sender           Sender
	idempotencyStore *IdempotencyStore
	config           *ConsumerConfig
	logger           *slog.Logger
	backoff          func(attempt int) time.Duration
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers       string
	Topic         string
	DLQTopic      string
	ConsumerGroup string
	MaxRetries    int
}

// NewConsumer creates a Kafka consumer with manual commits and a DLQ producer
func NewConsumer(
	config *ConsumerConfig,
	sender Sender,
	idempotencyStore *IdempotencyStore,
	logger *slog.Logger,
) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  config.Brokers,
		"group.id":           config.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": config.Brokers,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	logger.Info("Kafka consumer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"group", config.ConsumerGroup)

	return newConsumer(c, dlqProducer, config, sender, idempotencyStore, logger), nil
}

func newConsumer(
	source messageSource,
	dlq messageSink,
	config *ConsumerConfig,
	sender Sender,
	idempotencyStore *IdempotencyStore,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		source:           source,
		dlq:              dlq,
		sender:           sender,
		idempotencyStore: idempotencyStore,
		config:           config,
		logger:           logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.source.Subscribe(c.config.Topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	c.logger.Info("Starting to consume messages", "topic", c.config.Topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer shutting down...")
			return nil
		default:
		}

		msg, err := c.source.ReadMessage(1 * time.Second)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			c.logger.Error("Error reading message", "error", err)
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage handles one message. The offset is committed unless the
// idempotency store is unreachable, in which case the message is redelivered.
func (c *Consumer) processMessage(ctx context.Context, msg *kafka.Message) {
	var event EmailEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("Failed to parse email event",
			"error", err,
			"raw_value", string(msg.Value))
		c.commitMessage(msg)
		return
	}

	if event.MessageID == "" {
		c.logger.Error("Email event missing message_id",
			"recipient", event.Recipient,
			"type", event.EventType)
		c.commitMessage(msg)
		return
	}

	isProcessed, err := c.idempotencyStore.IsProcessed(ctx, event.MessageID)
	if err != nil {
		c.logger.Error("Failed to check idempotency",
			"messageID", event.MessageID,
			"error", err)
		return
	}

	if isProcessed {
		c.logger.Warn("Duplicate email event detected, skipping",
			"messageID", event.MessageID,
			"type", event.EventType)
		c.commitMessage(msg)
		return
	}

	if err := c.processWithRetry(ctx, event); err != nil {
		c.logger.Error("Failed to process email event after retries",
			"messageID", event.MessageID,
			"error", err)
		c.sendToDLQ(event, err)
		c.commitMessage(msg)
		return
	}

	if _, err := c.idempotencyStore.MarkAsProcessed(ctx, event); err != nil {
		c.logger.Error("Failed to mark as processed",
			"messageID", event.MessageID,
			"error", err)
		return
	}

	c.commitMessage(msg)

	c.logger.Info("Email event processed successfully",
		"messageID", event.MessageID,
		"type", event.EventType)
}

func (c *Consumer) processWithRetry(ctx context.Context, event EmailEvent) error {
	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := c.sender.SendEmailEvent(event)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("Email sent successfully after retry",
					"messageID", event.MessageID,
					"attempt", attempt)
			}
			return nil
		}

		lastErr = err
		c.logger.Warn("Failed to send email, will retry",
			"messageID", event.MessageID,
			"attempt", attempt,
			"maxRetries", maxRetries,
			"error", err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("interrupted after %d attempts: %w", attempt, lastErr)
			case <-time.After(c.backoff(attempt)):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// DLQMessage wraps a failed event on the dead letter topic
type DLQMessage struct {
	OriginalEvent EmailEvent `json:"original_event"`
	Error         string     `json:"error"`
	FailedAt      time.Time  `json:"failed_at"`
	ConsumerGroup string     `json:"consumer_group"`
}

func (c *Consumer) sendToDLQ(event EmailEvent, processingError error) {
	jsonData, err := json.Marshal(DLQMessage{
		OriginalEvent: event,
		Error:         processingError.Error(),
		FailedAt:      time.Now(),
		ConsumerGroup: c.config.ConsumerGroup,
	})
	if err != nil {
		c.logger.Error("Failed to marshal DLQ event",
			"messageID", event.MessageID,
			"error", err)
		return
	}

	err = c.dlq.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &c.config.DLQTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.MessageID),
		Value: jsonData,
	}, nil)
	if err != nil {
		c.logger.Error("Failed to send to DLQ",
			"messageID", event.MessageID,
			"error", err)
		return
	}

	c.logger.Warn("Email event sent to DLQ",
		"messageID", event.MessageID,
		"dlq_topic", c.config.DLQTopic)
}

func (c *Consumer) commitMessage(msg *kafka.Message) {
	if _, err := c.source.CommitMessage(msg); err != nil {
		c.logger.Error("Failed to commit offset",
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset,
			"error", err)
	}
}

// Close closes the consumer
func (c *Consumer) Close() {
	c.logger.Info("Closing Kafka consumer...")
	c.dlq.Flush(5000)
	c.dlq.Close()
	if err := c.source.Close(); err != nil {
		c.logger.Error("Failed to close consumer", "error", err)
	}
	c.logger.Info("Kafka consumer closed")
}
