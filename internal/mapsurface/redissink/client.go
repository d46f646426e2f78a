// Package redissink fans overlay render commands out to map clients over
// Redis pub/sub and keeps the latest state per session in a hash so a client
// that subscribes late can catch up.
package redissink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb      *redis.Client
	prefix   string
	stateTTL time.Duration
}

var _ mapsurface.Sink = (*Client)(nil)

// New connects and pings. prefix namespaces channels and state keys.
func New(ctx context.Context, addr, prefix string, stateTTL time.Duration, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if prefix == "" {
		prefix = "geofilter:overlay"
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, prefix: prefix, stateTTL: stateTTL}, nil
}

// Channel is the pub/sub channel carrying a session's commands.
func (c *Client) Channel(session string) string { return c.prefix + ":" + session }

// StateKey is the hash holding a session's latest command per field.
func (c *Client) StateKey(session string) string { return c.prefix + ":" + session + ":state" }

// Publish sends cmd on the session channel and folds it into the state hash
// in one transaction.
func (c *Client) Publish(ctx context.Context, cmd mapsurface.Command) error {
	if cmd.Session == "" {
		return errors.New("redissink: command without session")
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	key := c.StateKey(cmd.Session)
	field := stateField(cmd)
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, c.Channel(cmd.Session), b)
		if cmd.Op == mapsurface.OpRemove || (cmd.Op == mapsurface.OpMarker && cmd.Marker == nil) {
			p.HDel(ctx, key, field)
		} else {
			p.HSet(ctx, key, field, b)
		}
		if c.stateTTL > 0 {
			p.Expire(ctx, key, c.stateTTL)
		}
		return nil
	})
	if err != nil {
		observability.IncRedisPublish("error")
		return fmt.Errorf("redis publish %s: %w", cmd.Op, err)
	}
	observability.IncRedisPublish("ok")
	return nil
}

// State returns the latest command per field for session.
func (c *Client) State(ctx context.Context, session string) (map[string]mapsurface.Command, error) {
	raw, err := c.rdb.HGetAll(ctx, c.StateKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL: %w", err)
	}
	out := make(map[string]mapsurface.Command, len(raw))
	for f, v := range raw {
		var cmd mapsurface.Command
		if err := json.Unmarshal([]byte(v), &cmd); err != nil {
			return nil, fmt.Errorf("decode state %s: %w", f, err)
		}
		out[f] = cmd
	}
	return out, nil
}

// Forget drops a session's state hash.
func (c *Client) Forget(ctx context.Context, session string) error {
	if err := c.rdb.Del(ctx, c.StateKey(session)).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func stateField(cmd mapsurface.Command) string {
	switch cmd.Op {
	case mapsurface.OpMarker:
		return "marker"
	case mapsurface.OpDrawing:
		return "drawing"
	default:
		return "overlay:" + cmd.Slot
	}
}
