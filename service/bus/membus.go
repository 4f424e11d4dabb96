package bus

import (
	"context"
	"sync"

	errs "ChatRelay/tools/errs"
)

// MemoryBus 进程内总线。单机部署与单测使用；语义与外部后端一致：
// 每个订阅者各收到一份，慢订阅者溢出丢弃（尽力投递）。
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string][]*memSub
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errs.New("memory bus closed")
	}
	for _, s := range b.subs[channel] {
		cp := append([]byte(nil), payload...)
		select {
		case s.ch <- cp:
		default:
			// 订阅者积压，丢弃该条
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errs.New("memory bus closed")
	}
	s := &memSub{
		bus:     b,
		channel: channel,
		ch:      make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	b.subs[channel] = append(b.subs[channel], s)
	return s, nil
}

func (b *MemoryBus) HealthCheck(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *MemoryBus) Reset() {}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, list := range b.subs {
		for _, s := range list {
			s.closeOnce()
		}
	}
	b.subs = make(map[string][]*memSub)
	return nil
}

// SubscriberCount 当前频道的订阅数，供测试等待订阅循环就绪
func (b *MemoryBus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// Kick 掐断某频道的全部订阅（模拟后端断连，订阅循环应自动重建）
func (b *MemoryBus) Kick(channel string) {
	b.mu.Lock()
	list := b.subs[channel]
	b.subs[channel] = nil
	b.mu.Unlock()
	for _, s := range list {
		s.closeOnce()
	}
}

type memSub struct {
	bus     *MemoryBus
	channel string
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *memSub) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errs.New("subscription closed")
	case p := <-s.ch:
		return p, nil
	}
}

func (s *memSub) closeOnce() {
	s.once.Do(func() { close(s.done) })
}

func (s *memSub) Close() error {
	s.closeOnce()
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	list := s.bus.subs[s.channel]
	for i, x := range list {
		if x == s {
			s.bus.subs[s.channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}
