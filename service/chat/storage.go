package chat

import (
	"context"

	"ChatRelay/service/bus"
)

// Storage 持久层协作方（用户状态、消息落库）。网关只依赖这个接口；
// Mongo 实现见 service/storage。
type Storage interface {
	// SetUserStatus 标记用户持久在线状态，status 为 "online" / "offline"
	SetUserStatus(ctx context.Context, userID, status string) error
	// SetUserTyping 记录 typing 标志（尽力而为）
	SetUserTyping(ctx context.Context, userID string, typing bool) error
	// AppendMessageReader 把 userID 加进消息已读集合（add-to-set，重复加不报错）
	AppendMessageReader(ctx context.Context, messageID, userID string) error
	// InsertMessage 消息落库，返回消息ID
	InsertMessage(ctx context.Context, rec *bus.MessageData) (string, error)
}

// Presence 跨进程在线标记（Redis key + TTL）。本地 Registry 只是缓存，
// “用户在任意节点是否在线”的答案以它为准。
type Presence interface {
	Online(ctx context.Context, userID, gatewayID string) error
	// Offline 只有 key 仍归属 gatewayID 时才清除：
	// 用户已经迁到别的节点时不能把人家的在线标记删掉
	Offline(ctx context.Context, userID, gatewayID string) error
}
