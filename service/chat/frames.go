package chat

import (
	"encoding/json"
	"time"

	"ChatRelay/service/bus"
	errs "ChatRelay/tools/errs"
)

// 入站客户端事件类型
const (
	FrameSubscribeRoom   = "subscribe_room"
	FrameUnsubscribeRoom = "unsubscribe_room"
	FrameMessage         = "message"
	FrameTyping          = "typing"
	FrameReadMessage     = "read_message"
)

// ClientFrame 入站帧：{"type": <event>, "data": {...}}
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseClientFrame 解析入站帧；坏帧返回 ValidationError
func ParseClientFrame(raw []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrValidation.WrapMsg("malformed frame: " + err.Error())
	}
	if f.Type == "" {
		return nil, errs.ErrValidation.WrapMsg("missing frame type")
	}
	return &f, nil
}

// ===== 入站事件载荷 =====

type SubscribeRoomReq struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type MessageReq struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

type TypingReq struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type ReadMessageReq struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
}

// decodeFramePayload 把入站帧 data 解到目标结构；缺失或坏数据都算校验失败
func decodeFramePayload(f *ClientFrame, v any) error {
	if len(f.Data) == 0 {
		return errs.ErrValidation.WrapMsg("missing data")
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return errs.ErrValidation.WrapMsg("bad data: " + err.Error())
	}
	return nil
}

// ===== 出站推送 =====
// 出站与总线事件共用 {"event","data"} 封套，一比一转发即可。

// BuildErrorFrame error 帧只回给出错的那条连接
func BuildErrorFrame(msg string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"event": "error",
		"data":  map[string]string{"message": msg},
	})
	return raw
}

// nowMS 事件时间戳统一用毫秒
func nowMS() int64 {
	return time.Now().UnixMilli()
}

// encodeEvent 把总线事件原样编码为出站推送
func encodeEvent(ev bus.Event) []byte {
	raw, err := ev.Encode()
	if err != nil {
		return nil
	}
	return raw
}
