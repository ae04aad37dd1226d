package session

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/daviddozie/flowvahub/internal/ws"
)

// RedisPublisher fans session events out across every instance sharing a
// Redis channel. Run relays what arrives on the channel into the local hub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	hub     *ws.Hub
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(addr, password string, db int, channel string, hub *ws.Hub, logger *slog.Logger) (*RedisPublisher, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
		timeout: 500 * time.Millisecond,
	}, nil
}

// Publish sends e on the shared channel.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Run relays channel messages into the hub until ctx is done.
func (p *RedisPublisher) Run(ctx context.Context) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			e, err := DecodeEvent([]byte(msg.Payload))
			if err != nil || e.UserID == "" {
				p.logger.Warn("discarding malformed session event", "error", err)
				continue
			}
			p.hub.Broadcast(e.UserID, []byte(msg.Payload))
		}
	}
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() {
	if p.client != nil {
		_ = p.client.Close()
	}
}
