package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:"

// Presence counts live connections per user in Redis. The key expires when
// no connection has touched it within ttl, so a crashed instance does not
// leave users online forever.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Presence{client: client, ttl: ttl}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

func (p *Presence) Connected(ctx context.Context, userID string) error {
	key := presenceKey(userID)
	pipe := p.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) Touch(ctx context.Context, userID string) error {
	return p.client.Expire(ctx, presenceKey(userID), p.ttl).Err()
}

func (p *Presence) Disconnected(ctx context.Context, userID string) error {
	key := presenceKey(userID)
	n, err := p.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return p.client.Del(ctx, key).Err()
	}
	return nil
}

// IsOnline reports whether the user has at least one live connection.
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Get(ctx, presenceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Online filters ids down to those currently connected.
func (p *Presence) Online(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pipe := p.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, id := range ids {
		n, err := cmds[i].Int64()
		out[id] = err == nil && n > 0
	}
	return out, nil
}
