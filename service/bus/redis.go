package bus

import (
	"context"
	"sync"
	"time"

	"ChatRelay/logger"
	errs "ChatRelay/tools/errs"

	"github.com/redis/go-redis/v9"
)

// RedisConf Redis 总线配置
type RedisConf struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisBus Redis Pub/Sub 后端。client 为进程级共享句柄，
// 惰性建立；Reset 后整体替换，避免半坏句柄被继续持有。
type RedisBus struct {
	conf RedisConf

	mu     sync.Mutex
	client *redis.Client
}

func NewRedisBus(conf RedisConf) *RedisBus {
	return &RedisBus{conf: conf}
}

// get 返回当前句柄，没有则新建（不探活，探活走 HealthCheck）
func (b *RedisBus) get() *redis.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		b.client = redis.NewClient(&redis.Options{
			Addr:     b.conf.Addr,
			Password: b.conf.Password,
			DB:       b.conf.DB,
			PoolSize: b.conf.PoolSize,
		})
		logger.Infof("[bus] redis client created addr=%s db=%d", b.conf.Addr, b.conf.DB)
	}
	return b.client
}

// HealthCheck PING 探活
func (b *RedisBus) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return b.get().Ping(ctx).Err() == nil
}

// Reset 丢弃当前句柄，下次使用时重建
func (b *RedisBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		_ = b.client.Close()
		b.client = nil
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.get().Publish(ctx, channel, payload).Err(); err != nil {
		return errs.WrapMsg(err, "redis publish "+channel)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.get().Subscribe(ctx, channel)
	// 确认订阅建立；失败时调用方 Reset 后重试
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errs.WrapMsg(err, "redis subscribe "+channel)
	}
	return &redisSub{ps: ps}, nil
}

type redisSub struct {
	ps *redis.PubSub
}

func (s *redisSub) Receive(ctx context.Context) ([]byte, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (s *redisSub) Close() error {
	return s.ps.Close()
}
