package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<user>
// Value: gateway_id, TTL controls the online validity period
func presenceKey(user string) string { return "im:presence:" + user }

// RedisPresence 跨进程在线标记。本地 Registry 只能回答“这个进程上
// 谁在线”；“用户在任意节点是否在线”看这里的 key。
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

// Online sets the user as online and renews the TTL
func (p *RedisPresence) Online(ctx context.Context, userID, gatewayID string) error {
	return p.rdb.Set(ctx, presenceKey(userID), gatewayID, p.ttl).Err()
}

// Offline deletes the key only while this gateway still owns it,
// so a user who reconnected elsewhere is not marked offline by mistake.
func (p *RedisPresence) Offline(ctx context.Context, userID, gatewayID string) error {
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != gatewayID {
		return nil
	}
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

// Lookup checks whether the user is online anywhere, and on which gateway
func (p *RedisPresence) Lookup(ctx context.Context, userID string) (gatewayID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
