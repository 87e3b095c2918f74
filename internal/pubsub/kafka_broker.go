package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	defaultKafkaTopic         = "relay-events"
	defaultKafkaConsumerGroup = "relay"
)

// KafkaConfig holds configuration for the Kafka broker.
type KafkaConfig struct {
	Brokers       []string // list of broker addresses
	Topic         string   // topic every channel is multiplexed onto
	ConsumerGroup string   // prefix of the per-process consumer group
}

// KafkaBroker implements Broker on a single Kafka topic. The channel travels
// in the message key. Each process reads with its own consumer group so that
// every process sees every event, and fans messages out locally.
//
// Subscriptions are not synchronised with the reader position: a message
// published right after Subscribe returns may be missed while the reader is
// still joining its group.
type KafkaBroker struct {
	config KafkaConfig
	writer *kafka.Writer
	subs   *subscriptionTable

	mu      sync.Mutex
	closed  bool
	reader  *kafka.Reader
	ctx     context.Context
	cancel  context.CancelFunc
	readerW sync.WaitGroup
}

// NewKafkaBroker creates a KafkaBroker. The consumer is started lazily on the
// first Subscribe. Call Close() to stop the consumer and the producer.
func NewKafkaBroker(config KafkaConfig) (*KafkaBroker, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}
	if config.Topic == "" {
		config.Topic = defaultKafkaTopic
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaultKafkaConsumerGroup
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaBroker{
		config: config,
		writer: writer,
		subs:   newSubscriptionTable(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, channel string, data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.mu.Unlock()

	msg := kafka.Message{
		Key:   []byte(channel),
		Value: data,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

func (b *KafkaBroker) Subscribe(_ context.Context, channel string, handler Handler) (SubscriptionID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrBrokerClosed
	}
	if b.reader == nil {
		b.startReader()
	}
	id, _ := b.subs.add(channel, handler)
	return id, nil
}

func (b *KafkaBroker) Unsubscribe(id SubscriptionID) error {
	b.subs.remove(id)
	return nil
}

// groupID is unique per broker instance so each process consumes the whole
// topic.
func (b *KafkaBroker) groupID() string {
	return b.config.ConsumerGroup + "-" + uuid.New().String()
}

func (b *KafkaBroker) startReader() {
	b.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.config.Brokers,
		Topic:       b.config.Topic,
		GroupID:     b.groupID(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	b.readerW.Add(1)
	go b.consumeLoop(b.reader)
}

func (b *KafkaBroker) consumeLoop(reader *kafka.Reader) {
	defer b.readerW.Done()

	for {
		msg, err := reader.ReadMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("component", "pubsub").Msg("kafka: read failed")
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		b.subs.dispatch(Message{Channel: string(msg.Key), Data: msg.Value})
	}
}

// Close shuts down the consumer and the producer.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	reader := b.reader
	b.mu.Unlock()

	b.cancel()
	b.readerW.Wait()

	var result *multierror.Error
	if reader != nil {
		if err := reader.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close reader: %w", err))
		}
	}
	if err := b.writer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close writer: %w", err))
	}
	return result.ErrorOrNil()
}
