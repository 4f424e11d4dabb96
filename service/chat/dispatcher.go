package chat

import (
	"context"

	"ChatRelay/logger"
	"ChatRelay/service/bus"
)

// Dispatcher 挂在每条订阅循环上的处理端：把总线事件按作用域
// 转发给本地连接。presence 事件全员广播（任何客户端都可能展示
// 任何用户的状态）；room 作用域事件只发给房间内的本地连接。
// 不碰 Storage，不二次发布。
type Dispatcher struct {
	Reg    *Registry
	Fanout *Fanout
}

func NewDispatcher(reg *Registry, fanout *Fanout) *Dispatcher {
	return &Dispatcher{Reg: reg, Fanout: fanout}
}

// Handler 返回指定频道的 bus.Handler
func (d *Dispatcher) Handler(channel string) bus.Handler {
	switch channel {
	case bus.ChannelUserStatus:
		return d.handleUserStatus
	default:
		return d.handleRoomScoped
	}
}

func (d *Dispatcher) handleUserStatus(_ context.Context, ev bus.Event) error {
	payload := encodeEvent(ev)
	if payload == nil {
		return nil
	}
	d.Fanout.Broadcast(d.Reg.ListAll(), payload)
	return nil
}

func (d *Dispatcher) handleRoomScoped(_ context.Context, ev bus.Event) error {
	roomID := ev.RoomID()
	if roomID == "" {
		logger.Warnf("[dispatcher] room-scoped event without roomId channel=%s type=%s", ev.Channel, ev.Type)
		return nil
	}
	conns := d.Reg.ListRoom(roomID)
	if len(conns) == 0 {
		return nil
	}
	payload := encodeEvent(ev)
	if payload == nil {
		return nil
	}
	d.Fanout.Broadcast(conns, payload)
	return nil
}
