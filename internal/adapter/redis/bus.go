// Package redis broadcasts session invalidations between service replicas.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient accepts either a redis:// URL or a bare host:port.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	var rdb *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// Bus publishes and receives invalidated URLs on one channel.
type Bus struct {
	client  *redis.Client
	channel string
}

func NewBus(client *redis.Client, channel string) *Bus {
	return &Bus{client: client, channel: channel}
}

func (b *Bus) Publish(ctx context.Context, url string) error {
	if err := b.client.Publish(ctx, b.channel, url).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe calls fn for every URL published on the channel until ctx is done.
// It returns once the subscription is confirmed by the server.
func (b *Bus) Subscribe(ctx context.Context, fn func(url string)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				slog.Debug("session invalidation received", "url", msg.Payload)
				fn(msg.Payload)
			}
		}
	}()
	return nil
}
