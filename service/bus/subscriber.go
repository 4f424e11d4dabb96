package bus

import (
	"context"
	"sync"
	"time"

	"ChatRelay/logger"
	"ChatRelay/tools/safe"
)

// SubscriberLoop 单个频道的常驻监听循环。订阅后阻塞读消息流；
// 坏载荷记日志后跳过（失败即关闭）；读出错则退订、整体丢弃连接、
// 等待 RetryDelay 后从头重来。循环只因 ctx 取消而退出。
type SubscriberLoop struct {
	Conn       Conn
	Channel    string
	Handler    Handler
	RetryDelay time.Duration // 默认 5s

	ready     chan struct{}
	readyOnce sync.Once
}

func NewSubscriberLoop(conn Conn, channel string, h Handler, retryDelay time.Duration) *SubscriberLoop {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &SubscriberLoop{
		Conn:       conn,
		Channel:    channel,
		Handler:    h,
		RetryDelay: retryDelay,
		ready:      make(chan struct{}),
	}
}

// Ready 首次订阅成功后关闭。装配方用它保证频道真正挂上监听之后
// 才对外放流量。
func (l *SubscriberLoop) Ready() <-chan struct{} { return l.ready }

// Start 在后台 goroutine 里跑循环
func (l *SubscriberLoop) Start(ctx context.Context) {
	safe.Go("subscriber:"+l.Channel, func() { l.Run(ctx) })
}

// Run 阻塞执行循环，直到 ctx 取消
func (l *SubscriberLoop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		sub, err := l.Conn.Subscribe(ctx, l.Channel)
		if err != nil {
			logger.Warnf("[bus] subscribe channel=%s failed: %v, retry in %s", l.Channel, err, l.RetryDelay)
			l.Conn.Reset()
			if !l.wait(ctx) {
				return
			}
			continue
		}
		logger.Infof("[bus] subscribed channel=%s", l.Channel)
		l.readyOnce.Do(func() { close(l.ready) })

		l.consume(ctx, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}
		logger.Warnf("[bus] channel=%s connection lost, reconnecting in %s", l.Channel, l.RetryDelay)
		l.Conn.Reset()
		if !l.wait(ctx) {
			return
		}
	}
}

// consume 读消息直到出错（断连）或 ctx 取消
func (l *SubscriberLoop) consume(ctx context.Context, sub Subscription) {
	for {
		payload, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnf("[bus] receive channel=%s err: %v", l.Channel, err)
			}
			return
		}
		ev, err := Decode(l.Channel, payload)
		if err != nil {
			logger.Errorf("[bus] drop malformed payload channel=%s err=%v", l.Channel, err)
			continue
		}
		if err := l.Handler(ctx, ev); err != nil {
			logger.Errorf("[bus] handler channel=%s type=%s err: %v", l.Channel, ev.Type, err)
		}
	}
}

func (l *SubscriberLoop) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.RetryDelay):
		return true
	}
}
