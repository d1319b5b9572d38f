package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	xlogger "SwingScan/pkg/logger"
)

// MessageHandler processes messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, value []byte) error
}

// ConsumerConfig configures a consumer group.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	MinBytes   int
	MaxBytes   int
	MaxWait    time.Duration
	Workers    int
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Consumer reads topics with a worker pool per topic.
type Consumer struct {
	cfg      ConsumerConfig
	log      *xlogger.Logger
	handlers map[string]MessageHandler
	readers  []*kafka.Reader

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer creates a consumer. Handlers are registered before Start.
func NewConsumer(cfg ConsumerConfig, log *xlogger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group id is required")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Consumer{
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]MessageHandler),
	}, nil
}

// RegisterHandler registers a handler for its topic.
func (c *Consumer) RegisterHandler(h MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("consumer already started")
	}
	if _, ok := c.handlers[h.Topic()]; ok {
		return fmt.Errorf("handler for topic %s already registered", h.Topic())
	}
	c.handlers[h.Topic()] = h
	return nil
}

// Start launches a reader and worker pool for each registered topic.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("consumer already started")
	}
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	for topic, h := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
			MaxWait:  c.cfg.MaxWait,
		})
		c.readers = append(c.readers, reader)

		msgs := make(chan kafka.Message, c.cfg.Workers*2)
		c.wg.Add(1)
		go c.fetchLoop(ctx, reader, msgs)
		for i := 0; i < c.cfg.Workers; i++ {
			c.wg.Add(1)
			go c.workLoop(ctx, reader, h, msgs)
		}
		c.log.Info("kafka consumer started",
			xlogger.String("topic", topic),
			xlogger.String("group", c.cfg.GroupID),
			xlogger.Int("workers", c.cfg.Workers))
	}
	return nil
}

// Stop cancels the readers and waits for workers to drain.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	readers := c.readers
	c.mu.Unlock()

	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.wg.Wait()
	return firstErr
}

func (c *Consumer) fetchLoop(ctx context.Context, reader *kafka.Reader, msgs chan<- kafka.Message) {
	defer c.wg.Done()
	defer close(msgs)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Warn("kafka fetch failed", xlogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.MinBackoff):
			}
			continue
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) workLoop(ctx context.Context, reader *kafka.Reader, h MessageHandler, msgs <-chan kafka.Message) {
	defer c.wg.Done()
	for msg := range msgs {
		c.handleWithRetry(ctx, h, msg)
		if err := reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("kafka commit failed",
				xlogger.String("topic", msg.Topic),
				xlogger.Error(err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, h MessageHandler, msg kafka.Message) {
	backoff := c.cfg.MinBackoff
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		err := h.Handle(ctx, msg.Value)
		if err == nil {
			return
		}
		if attempt == c.cfg.MaxRetries {
			c.log.Error("kafka message dropped after retries",
				xlogger.String("topic", msg.Topic),
				xlogger.Int("attempts", attempt+1),
				xlogger.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}
