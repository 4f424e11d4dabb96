package natsbus

import (
	"context"
	"strings"
	"sync"
	"time"

	"ChatRelay/logger"
	"ChatRelay/service/bus"
	errs "ChatRelay/tools/errs"

	"github.com/nats-io/nats.go"
)

// Conf NATS 总线配置
type Conf struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func (c *Conf) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Name == "" {
		c.Name = "chat-relay"
	}
}

// NatsBus core 模式的 NATS 后端，实现 bus.Conn。
// 频道名直接作为 subject（广播，不挂 queue group：每个进程都要收到）。
// 句柄进程内共享，Reset 整体替换。
type NatsBus struct {
	conf Conf

	mu sync.Mutex
	nc *nats.Conn
}

func New(conf Conf) *NatsBus {
	conf.norm()
	return &NatsBus{conf: conf}
}

func (b *NatsBus) get() (*nats.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc != nil && b.nc.IsConnected() {
		return b.nc, nil
	}
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
	}
	if len(b.conf.Servers) == 0 {
		return nil, errs.New("nats servers missing")
	}
	opts := []nats.Option{
		nats.Name(b.conf.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(b.conf.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(b.conf.Timeout),
	}
	nc, err := nats.Connect(strings.Join(b.conf.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect")
	}
	b.nc = nc
	logger.Infof("[natsbus] connected servers=%v name=%s", b.conf.Servers, b.conf.Name)
	return nc, nil
}

func (b *NatsBus) Publish(_ context.Context, channel string, payload []byte) error {
	nc, err := b.get()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(channel)
	msg.Data = payload
	if err := nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish "+channel)
	}
	return nil
}

func (b *NatsBus) Subscribe(_ context.Context, channel string) (bus.Subscription, error) {
	nc, err := b.get()
	if err != nil {
		return nil, err
	}
	sub, err := nc.SubscribeSync(channel)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats subscribe "+channel)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	return &natsSub{sub: sub}, nil
}

func (b *NatsBus) HealthCheck(_ context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
	}
}

func (b *NatsBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc == nil {
		return nil
	}
	err := b.nc.Drain()
	b.nc = nil
	return err
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Receive(ctx context.Context) ([]byte, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), msg.Data...), nil
}

func (s *natsSub) Close() error {
	return s.sub.Unsubscribe()
}
