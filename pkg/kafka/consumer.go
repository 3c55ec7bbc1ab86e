package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "staybook/pkg/kafka/config"
	"staybook/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const fetchErrorBackoff = time.Second

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader       messageReader
	dlqWriter    messageWriter
	topic        string
	groupID      string
	dlqTopic     string
	maxRetries   int
	retryBackoff time.Duration
	handler      MessageHandler
	middleware   []ConsumerMiddleware
	log          *logger.Logger
	closed       bool
	mu           sync.RWMutex
	wg           sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topic string, groupID string, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	log = log.Component("kafka_consumer").With("topic", topic, "group_id", groupID)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger:       errorLogger(log),
	})

	consumer := &Consumer{
		reader:       reader,
		topic:        topic,
		groupID:      groupID,
		dlqTopic:     dlqTopic,
		maxRetries:   cfg.ConsumerMaxRetries,
		retryBackoff: cfg.ConsumerRetryBackoff,
		handler:      handler,
		middleware:   make([]ConsumerMiddleware, 0),
		log:          log,
	}

	if dlqTopic != "" {
		consumer.dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			MaxAttempts:  3,
			Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
			ErrorLogger:  errorLogger(log),
		}
	}

	return consumer, nil
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx is cancelled. Offsets are committed after the
// handler succeeds or the message is parked on the DLQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	for {
		kafkaMsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Failed to fetch message", "error", err)
			if !sleepCtx(ctx, fetchErrorBackoff) {
				return ctx.Err()
			}
			continue
		}

		msg := convertMessage(kafkaMsg)
		if err := c.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Failed to process message",
				"key", msg.Key,
				"event_id", msg.GetEventID(),
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil {
			c.log.Error("Failed to commit offset", "offset", kafkaMsg.Offset, "error", err)
		}
	}
}

func (c *Consumer) chain() MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handler := c.handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}
	return handler
}

// processMessage retries transient failures up to maxRetries times, then
// parks the message on the DLQ.
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	handler := c.chain()

	var err error
	for {
		err = handler(ctx, msg)
		if err == nil {
			return nil
		}
		retries := msg.GetRetryCount()
		if !ShouldRetry(err, retries, c.maxRetries) {
			break
		}
		msg.IncrementRetryCount()
		c.log.Warn("Retrying message",
			"event_id", msg.GetEventID(),
			"attempt", retries+1,
			"max_retries", c.maxRetries,
			"error", err,
		)
		if !sleepCtx(ctx, c.retryBackoff*time.Duration(retries+1)) {
			return ctx.Err()
		}
	}

	if c.dlqWriter != nil {
		if dlqErr := c.sendToDLQ(ctx, msg, err); dlqErr != nil {
			c.log.Error("Failed to send message to DLQ", "event_id", msg.GetEventID(), "error", dlqErr, "original_error", err)
		} else {
			c.log.Warn("Message sent to DLQ", "event_id", msg.GetEventID(), "retries", msg.GetRetryCount(), "error", err)
		}
	}
	return err
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg Message, originalErr error) error {
	msg = msg.withHeaders(map[string]string{
		HeaderOriginalTopic: c.topic,
		HeaderDLQError:      originalErr.Error(),
		HeaderDLQTimestamp:  time.Now().UTC().Format(time.RFC3339),
		HeaderDLQGroup:      c.groupID,
	})
	return c.dlqWriter.WriteMessages(ctx, toKafkaMessage(msg, time.Now()))
}

func convertMessage(kafkaMsg kafka.Message) Message {
	msg := Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   make(map[string]string, len(kafkaMsg.Headers)),
		Topic:     kafkaMsg.Topic,
		Partition: kafkaMsg.Partition,
		Offset:    kafkaMsg.Offset,
		Timestamp: kafkaMsg.Time,
	}
	for _, header := range kafkaMsg.Headers {
		msg.Headers[header.Key] = string(header.Value)
	}
	return msg
}

// Close waits for Start to return, so cancel its context first.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	err := c.reader.Close()
	if c.dlqWriter != nil {
		if dlqErr := c.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
