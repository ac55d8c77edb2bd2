// Package redischan implements the channel contract over Redis Pub/Sub.
// It bridges auxiliaries to devices or simulators reachable through a
// Redis broker instead of a local bus: sends are published on the
// transmit topic, receives are consumed from a subscription on the
// receive topic.
package redischan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/rig/pkg/channel"
)

// Config describes one Redis-backed channel. All topics are namespaced
// under rig:{topic} so multiple rigs can share one broker without
// interference.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Topic is the logical channel name. The channel publishes on
	// rig:{topic}:tx and subscribes to rig:{topic}:rx.
	Topic string
}

// SendTopic returns the Redis channel payloads are published on.
func (c Config) SendTopic() string {
	return fmt.Sprintf("rig:%s:tx", c.Topic)
}

// RecvTopic returns the Redis channel inbound traffic arrives on.
func (c Config) RecvTopic() string {
	return fmt.Sprintf("rig:%s:rx", c.Topic)
}

// Channel is a channel.Channel backed by Redis Pub/Sub.
type Channel struct {
	alias string
	cfg   Config

	mu   sync.Mutex
	rdb  *redis.Client
	sub  *redis.PubSub
	msgs <-chan *redis.Message
}

var _ channel.Channel = (*Channel)(nil)

// New creates a Redis channel. The connection is only established on
// Open.
func New(alias string, cfg Config) (*Channel, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis channel %q: addr is required", alias)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("redis channel %q: topic is required", alias)
	}
	return &Channel{alias: alias, cfg: cfg}, nil
}

// Alias returns the configured alias.
func (c *Channel) Alias() string {
	return c.alias
}

// Open connects to the broker and subscribes to the receive topic.
func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb != nil {
		return fmt.Errorf("redis channel %q: already open", c.alias)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Addr,
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("redis channel %q: broker not reachable: %w", c.alias, err)
	}

	sub := rdb.Subscribe(ctx, c.cfg.RecvTopic())
	// Force the subscription to be established before Open returns so no
	// early inbound message is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		rdb.Close()
		return fmt.Errorf("redis channel %q: subscribe failed: %w", c.alias, err)
	}

	c.rdb = rdb
	c.sub = sub
	c.msgs = sub.Channel()
	return nil
}

// Close drops the subscription and the connection. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb == nil {
		return nil
	}
	if err := c.sub.Close(); err != nil {
		c.rdb.Close()
		c.rdb, c.sub, c.msgs = nil, nil, nil
		return fmt.Errorf("redis channel %q: failed to close subscription: %w", c.alias, err)
	}
	err := c.rdb.Close()
	c.rdb, c.sub, c.msgs = nil, nil, nil
	if err != nil {
		return fmt.Errorf("redis channel %q: failed to close client: %w", c.alias, err)
	}
	return nil
}

// Send publishes the payload on the transmit topic.
func (c *Channel) Send(payload []byte) error {
	c.mu.Lock()
	rdb := c.rdb
	c.mu.Unlock()
	if rdb == nil {
		return fmt.Errorf("redis channel %q: %w", c.alias, channel.ErrNotOpen)
	}

	if err := rdb.Publish(context.Background(), c.cfg.SendTopic(), payload).Err(); err != nil {
		return fmt.Errorf("redis channel %q: publish failed: %w", c.alias, err)
	}
	return nil
}

// Receive waits up to timeout for one message from the receive topic.
func (c *Channel) Receive(timeout time.Duration) (channel.Message, error) {
	c.mu.Lock()
	msgs := c.msgs
	c.mu.Unlock()
	if msgs == nil {
		return channel.Message{}, fmt.Errorf("redis channel %q: %w", c.alias, channel.ErrNotOpen)
	}

	if timeout <= 0 {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return channel.Message{}, nil
			}
			return toMessage(msg), nil
		default:
			return channel.Message{}, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-msgs:
		if !ok {
			return channel.Message{}, nil
		}
		return toMessage(msg), nil
	case <-timer.C:
		return channel.Message{}, nil
	}
}

func toMessage(msg *redis.Message) channel.Message {
	return channel.Message{
		Payload: []byte(msg.Payload),
		Meta:    map[string]string{"topic": msg.Channel},
	}
}
