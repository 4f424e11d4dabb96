package bus

import (
	"context"
	"sync"
	"time"
)

// Handler 频道事件的业务处理函数
type Handler func(ctx context.Context, ev Event) error

// Middleware 中间件（日志、去重、指标等）
type Middleware func(Handler) Handler

// Chain 组合中间件
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ----- seen-once 去重存储（内存版，单进程） -----

type SeenStore interface {
	SeenOnce(key string, ttl time.Duration) bool
	Close()
}

type memSeen struct {
	mu  sync.Mutex
	m   map[string]int64 // key -> expireUnix
	ttl time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemSeen(defaultTTL time.Duration) SeenStore {
	ms := &memSeen{
		m:      make(map[string]int64),
		ttl:    defaultTTL,
		stopCh: make(chan struct{}),
	}
	go ms.sweeper()
	return ms
}

func (ms *memSeen) sweeper() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ms.stopCh:
			return
		case <-t.C:
			now := time.Now().Unix()
			ms.mu.Lock()
			for k, exp := range ms.m {
				if exp <= now {
					delete(ms.m, k)
				}
			}
			ms.mu.Unlock()
		}
	}
}

// Close 停掉清理协程（幂等）
func (ms *memSeen) Close() {
	ms.stopOnce.Do(func() { close(ms.stopCh) })
}

func (ms *memSeen) SeenOnce(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = ms.ttl
	}
	now := time.Now()
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if exp, ok := ms.m[key]; ok && exp > now.Unix() {
		return true
	}
	ms.m[key] = now.Add(ttl).Unix()
	return false
}

// DedupMiddleware 按 type+data 去重，挡住后端重投。
// 事件自身不带 ID，载荷即身份（同内容重复在窗口内跳过）。
func DedupMiddleware(store SeenStore, ttl time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, ev Event) error {
			key := ev.Channel + "|" + ev.Type + "|" + string(ev.Data)
			if store.SeenOnce(key, ttl) {
				return nil
			}
			return next(ctx, ev)
		}
	}
}
