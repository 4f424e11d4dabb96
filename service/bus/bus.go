package bus

import (
	"context"
)

// Subscription 某个频道上的一条订阅。Receive 阻塞等待下一条原始载荷；
// 连接断开时返回错误，由订阅循环负责重建。
type Subscription interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Conn 到 pub/sub 后端的一条逻辑连接。实现必须满足：
//   - 句柄进程内共享、首次使用时惰性建立；
//   - Reset 整体丢弃句柄（绝不原地修补），下次使用重新连接；
//   - HealthCheck 轻量探活，失败后调用方先 Reset 再用。
type Conn interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	HealthCheck(ctx context.Context) bool
	Reset()
	Close() error
}
