package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retroflect/backend/internal/events"
	"github.com/retroflect/backend/pkg/logger"
)

// ChannelPrefix is the Redis channel namespace for board events. Each board
// gets its own channel (prefix + board id) so gateways subscribe per room with
// a single pattern subscription.
const ChannelPrefix = "retroflect.events."

// RedisBroadcaster publishes events to Redis pub/sub. Any number of gateway
// processes can subscribe; publishing to a channel with no subscribers is not
// an error.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster connects to Redis at the given URL and verifies the
// connection before returning.
func NewRedisBroadcaster(redisURL string) (*RedisBroadcaster, error) {
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

	return &RedisBroadcaster{client: client}, nil
}

// NewRedisBroadcasterWithClient wraps an existing Redis client
func NewRedisBroadcasterWithClient(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

// Channel returns the pub/sub channel name for a board id
func Channel(boardID string) string {
	return ChannelPrefix + boardID
}

// Broadcast implements Broadcaster. Marshal or publish failures are logged,
// never surfaced: the mutation already committed and the caller must not care.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error.Printf("broadcast: marshal %s event: %v", event.Type, err)
		return
	}

	if err := b.client.Publish(ctx, Channel(event.BoardID.String()), payload).Err(); err != nil {
		logger.Error.Printf("broadcast: publish %s event for board %s: %v", event.Type, event.BoardID, err)
	}
}

// Close closes the underlying Redis connection
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
