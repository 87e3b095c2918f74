package pubsub

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkden-lab/relay/internal/config"
)

func TestNewBroker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.Config
		want any
	}{
		{"memory", config.Config{PubSubBroker: config.BrokerMemory}, &InMemoryBroker{}},
		{"redis", config.Config{PubSubBroker: config.BrokerRedis, RedisAddr: mr.Addr()}, &RedisBroker{}},
		{"kafka", config.Config{PubSubBroker: config.BrokerKafka, KafkaBrokers: []string{"localhost:9092"}}, &KafkaBroker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBroker(ctx, &tt.cfg)
			require.NoError(t, err)
			defer b.Close()
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBroker_Unknown(t *testing.T) {
	_, err := NewBroker(context.Background(), &config.Config{PubSubBroker: "nats"})
	assert.Error(t, err)
}
