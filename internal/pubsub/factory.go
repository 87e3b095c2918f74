package pubsub

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/darkden-lab/relay/internal/config"
)

// NewBroker creates the Broker selected by PUBSUB_BROKER.
func NewBroker(ctx context.Context, cfg *config.Config) (Broker, error) {
	switch cfg.PubSubBroker {
	case config.BrokerMemory:
		log.Info().Str("component", "pubsub").Msg("using in-memory broker")
		return NewInMemoryBroker(), nil
	case config.BrokerRedis:
		log.Info().Str("component", "pubsub").Str("addr", cfg.RedisAddr).Msg("using redis broker")
		b, err := NewRedisBroker(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BrokerKafka:
		log.Info().Str("component", "pubsub").Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("using kafka broker")
		b, err := NewKafkaBroker(KafkaConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.PubSubBroker)
	}
}
