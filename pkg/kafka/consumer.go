package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "FinRange/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a reader for one topic.
type ReaderFactory func(cfg *ConsumerConfig, topic string) Reader

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Hook        ConsumerHook
	Registerer  prometheus.Registerer
	NewReader   ReaderFactory
	DLQWriter   Writer
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

// WithConsumerGroupID sets consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerWorkers sets number of worker goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the internal channel buffer size.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func WithConsumerHook(h ConsumerHook) ConsumerOption {
	return func(c *ConsumerConfig) {
		if h != nil {
			c.Hook = h
		}
	}
}

// WithConsumerRegisterer sets where consumer metrics are registered.
func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) { c.Registerer = reg }
}

// WithConsumerReaderFactory replaces the kafka-go reader constructor.
func WithConsumerReaderFactory(f ReaderFactory) ConsumerOption {
	return func(c *ConsumerConfig) { c.NewReader = f }
}

// WithConsumerDLQWriter replaces the DLQ writer.
func WithConsumerDLQWriter(w Writer) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQWriter = w }
}

// Consumer reads registered topics and dispatches messages to a worker pool.
// Offsets are committed after success or after the message reached the DLQ.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]Reader
	handlers map[string]MessageHandler
	msgChan  chan *message
	cancel   context.CancelFunc
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
	metrics  *consumerMetrics

	lockMu    sync.Mutex
	partLocks map[string]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(log *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
		Hook:        NoopHook{},
		NewReader:   newKafkaReader,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.DLQTopic != "" && cfg.DLQWriter == nil {
		cfg.DLQWriter = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log.Component("kafka-consumer"),
		readers:   make(map[string]Reader),
		handlers:  make(map[string]MessageHandler),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]*sync.Mutex),
	}
	if cfg.Registerer != nil {
		c.metrics = newConsumerMetrics(cfg.Registerer)
	}
	return c, nil
}

func newKafkaReader(cfg *ConsumerConfig, topic string) Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
}

// RegisterHandler registers a message handler for its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for topic := range c.handlers {
		c.readers[topic] = c.cfg.NewReader(c.cfg, topic)
	}
	// queued messages are still handled after Stop cancels the readers
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.messageWorker(workCtx)
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.consumeMessages(runCtx, topic, reader)
	}
	c.log.Info("kafka consumer started",
		applogger.Int("workers", c.cfg.WorkerCount),
		applogger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop stops reading, drains queued messages and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.readWG.Wait()
		close(c.msgChan)
		stopErr = waitGroup(ctx, &c.workWG)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.cfg.DLQWriter != nil {
			if err := c.cfg.DLQWriter.Close(); err != nil {
				c.log.Warn("close dlq writer", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consumeMessages(ctx context.Context, topic string, reader Reader) {
	defer c.readWG.Done()
	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			c.metrics.queued(topic, len(c.msgChan), cap(c.msgChan))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) messageWorker(ctx context.Context) {
	defer c.workWG.Done()
	for msg := range c.msgChan {
		c.process(ctx, msg)
	}
}

// process handles one message with retries, DLQ and commit. Messages of one
// partition are handled one at a time.
func (c *Consumer) process(ctx context.Context, msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	attempts, err := c.handleWithRetry(ctx, handler, msg)
	if err != nil {
		c.cfg.Hook.OnError(ctx, msg.topic, msg.km, msg.km.Value, err)
		c.log.Error("message handling failed",
			applogger.String("topic", msg.topic),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if dlqErr := c.toDLQ(msg); dlqErr != nil {
			c.log.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(dlqErr))
			c.metrics.observe(msg.topic, "failed", time.Since(start))
			return
		}
	}

	if reader := c.readers[msg.topic]; reader != nil && (err == nil || c.cfg.DLQWriter != nil) {
		_ = c.commitWithRetry(reader, msg.km, 3)
	}
	result := "ok"
	if err != nil {
		result = "dlq"
	}
	c.metrics.observe(msg.topic, result, time.Since(start))
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg *message) (int, error) {
	var err error
	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.cfg.Hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			return attempts, berr
		}
		err = safeHandle(hctx, handler, hdata)
		c.cfg.Hook.AfterHandle(hctx, msg.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax || errors.Is(err, ErrPermanent) {
			return attempts, err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-ctx.Done():
			return attempts, ctx.Err()
		}
	}
}

// ErrPermanent marks handler errors that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v: %w", r, ErrPermanent)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) toDLQ(msg *message) error {
	if c.cfg.DLQWriter == nil || c.cfg.DLQTopic == "" {
		return fmt.Errorf("no dlq configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.cfg.DLQWriter.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Time:  time.Now().UTC(),
		Headers: append(msg.km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(msg.topic)},
		),
	})
}

func (c *Consumer) commitWithRetry(reader Reader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit failed", applogger.Int("attempts", max), applogger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	// up to 50% jitter
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

type consumerMetrics struct {
	queueDepth *prometheus.GaugeVec
	handled    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "finrange_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer queue"},
			[]string{"topic"},
		),
		handled: f.NewCounterVec(
			prometheus.CounterOpts{Name: "finrange_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"topic", "result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "finrange_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		),
	}
}

func (m *consumerMetrics) queued(topic string, depth, _ int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(topic).Set(float64(depth))
}

func (m *consumerMetrics) observe(topic, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
