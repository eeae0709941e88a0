// Package transport provides broadcast-bus implementations of
// core.Transport: Redis pub/sub for production and the relay
// websocket for local development.
package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
)

// Redis is a core.Transport backed by Redis pub/sub: one Redis
// channel per topic. Redis echoes a publisher its own messages, so
// self-suppression stays with the signal channel's From filtering.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Publish(ctx context.Context, topic string, data core.Frame) error {
	return r.client.Publish(ctx, topic, []byte(data)).Err()
}

func (r *Redis) Subscribe(ctx context.Context, topic string, fn func(core.Frame)) (core.Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)
	// Wait for the subscription to be confirmed before reporting success.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	go func() {
		for msg := range ps.Channel() {
			fn(core.Frame(msg.Payload))
		}
		log.Debug().Str("module", "transport.redis").Str("topic", topic).Msg("subscription drained")
	}()
	return redisSub{ps: ps}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

type redisSub struct {
	ps *redis.PubSub
}

func (s redisSub) Close() error { return s.ps.Close() }
