package bus

import (
	"context"
	"time"

	"ChatRelay/logger"
	errs "ChatRelay/tools/errs"
)

// EventPublisher Gateway 依赖的发布口
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Publisher 同步发布器（带重试）。每次尝试前先探活，探活失败整体换连接；
// 瞬时失败固定间隔退避，额度耗尽即认输返回 BusUnavailable。
// 调用方已落库/已改本地状态的部分**不回滚**：发布失败只降级实时投递。
type Publisher struct {
	Conn     Conn
	Attempts int           // 默认 3
	Backoff  time.Duration // 默认 1s
}

func NewPublisher(conn Conn, attempts int, backoff time.Duration) *Publisher {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Publisher{Conn: conn, Attempts: attempts, Backoff: backoff}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < p.Attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff):
			}
		}
		if !p.Conn.HealthCheck(ctx) {
			logger.Warnf("[bus] health check failed, resetting connection (attempt %d/%d)", i+1, p.Attempts)
			p.Conn.Reset()
		}
		if lastErr = p.Conn.Publish(ctx, ev.Channel, payload); lastErr == nil {
			return nil
		}
		logger.Warnf("[bus] publish channel=%s type=%s failed (attempt %d/%d): %v",
			ev.Channel, ev.Type, i+1, p.Attempts, lastErr)
	}

	logger.Errorf("[bus] publish channel=%s type=%s gave up after %d attempts: %v",
		ev.Channel, ev.Type, p.Attempts, lastErr)
	return errs.ErrBusUnavailable.WrapMsg(lastErr.Error())
}
