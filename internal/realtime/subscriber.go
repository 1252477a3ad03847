package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/pkg/logger"
)

// Subscriber relays board events from Redis pub/sub into the hub. It is the
// receiving half of broadcast.RedisBroadcaster: with it in place, a mutation
// committed on any instance reaches the websocket clients of every instance.
type Subscriber struct {
	client *redis.Client
	hub    *Hub
}

// NewSubscriber connects to Redis at the given URL and verifies the
// connection before returning.
func NewSubscriber(redisURL string, hub *Hub) (*Subscriber, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Subscriber{client: client, hub: hub}, nil
}

// NewSubscriberWithClient wraps an existing Redis client
func NewSubscriberWithClient(client *redis.Client, hub *Hub) *Subscriber {
	return &Subscriber{client: client, hub: hub}
}

// Run subscribes to every board channel and forwards each payload to the hub
// until ctx is cancelled. Payloads that do not decode as events are logged
// and skipped.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.client.PSubscribe(ctx, broadcast.ChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn.Printf("realtime: skipping undecodable payload on %s: %v", msg.Channel, err)
				continue
			}
			s.hub.Broadcast(ctx, event)
		}
	}
}

// Close closes the underlying Redis connection
func (s *Subscriber) Close() error {
	return s.client.Close()
}
