package bus

import (
	"encoding/json"

	errs "ChatRelay/tools/errs"
)

// 固定频道集合：进程启动时每个频道都必须先挂好订阅循环
const (
	ChannelUserStatus    = "user-status"
	ChannelRoomEvents    = "room-events"
	ChannelMessageEvents = "message-events"
	ChannelTypingEvents  = "typing-events"
)

// Channels 按启动顺序列出全部频道
func Channels() []string {
	return []string{
		ChannelUserStatus,
		ChannelRoomEvents,
		ChannelMessageEvents,
		ChannelTypingEvents,
	}
}

// 事件类型（与对外推送的 socket 事件一一对应）
const (
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventRoomSubscribed   = "room_subscribed"
	EventRoomUnsubscribed = "room_unsubscribed"
	EventNewMessage       = "new_message"
	EventTypingStatus     = "typing_status"
	EventMessageRead      = "message_read"
)

// Event 总线上的单条事件。线格式固定为 {"event": <type>, "data": {...}}，
// Channel 不上线，由订阅方按频道回填。发布后不可变。
type Event struct {
	Channel string          `json:"-"`
	Type    string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// NewEvent 构造事件并序列化 data
func NewEvent(channel, typ string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, errs.WrapMsg(err, "marshal event data")
	}
	return Event{Channel: channel, Type: typ, Data: raw}, nil
}

// Encode 输出线格式
func (e Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal event")
	}
	return raw, nil
}

// DecodeData 把 data 解到目标结构
func (e Event) DecodeData(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errs.ErrDecode.WrapMsg(err.Error())
	}
	return nil
}

// Decode 解析总线载荷。失败即关闭：坏载荷返回 ErrDecode，调用方跳过该条。
func Decode(channel string, payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, errs.ErrDecode.WrapMsg(err.Error())
	}
	if e.Type == "" {
		return Event{}, errs.ErrDecode.WrapMsg("missing event type")
	}
	e.Channel = channel
	return e, nil
}

// ===== 各事件 data 载荷（JSON 字段名与老客户端保持一致） =====

type PresenceData struct {
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

type RoomData struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type TypingData struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

type ReadData struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

type MessageData struct {
	ID        string   `json:"_id"`
	RoomID    string   `json:"roomId"`
	SenderID  string   `json:"senderId"`
	Content   string   `json:"content"`
	CreatedAt int64    `json:"createdAt"`
	ReadBy    []string `json:"readBy"`
}

// RoomID 从 room 作用域事件里取出 roomId（presence 事件返回空串）
func (e Event) RoomID() string {
	var probe struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(e.Data, &probe); err != nil {
		return ""
	}
	return probe.RoomID
}
