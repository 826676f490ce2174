package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/lessslie/Pelu-PetShop/pkg/circuitbreaker"
)

func TestNewRedisBroker_InvalidURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "not a url"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRedisBroker_PublishTripsBreaker(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	broker := newBroker(client, zerolog.Nop())
	defer broker.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := broker.Publish(ctx, "events", map[string]string{"type": "appointment.created"})
		assert.Error(t, err)
		assert.False(t, circuitbreaker.IsOpen(err))
	}

	err := broker.Publish(ctx, "events", map[string]string{"type": "appointment.created"})
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, "open", broker.cb.State())
}

func TestRedisBroker_PublishRejectsUnmarshalable(t *testing.T) {
	broker := newBroker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), zerolog.Nop())
	defer broker.Close()

	err := broker.Publish(context.Background(), "events", make(chan int))
	assert.ErrorContains(t, err, "marshal")
}
