package chat

import (
	"context"

	"ChatRelay/logger"
	"ChatRelay/service/bus"
	errs "ChatRelay/tools/errs"
	"ChatRelay/tools/safe"

	"github.com/google/uuid"
)

// Gateway 每连接事件处理器。校验入站事件、改本地 Registry、
// 调 Storage 落库、再把对应领域事件发上总线。
// 任何处理失败只回给出错的那条连接（error 帧），绝不外溢。
type Gateway struct {
	GatewayID string
	Reg       *Registry
	Store     Storage
	Presence  Presence // 可为 nil（presence key 降级不写）
	Pub       bus.EventPublisher
}

func NewGateway(gatewayID string, reg *Registry, store Storage, presence Presence, pub bus.EventPublisher) *Gateway {
	return &Gateway{GatewayID: gatewayID, Reg: reg, Store: store, Presence: presence, Pub: pub}
}

// Connect 登记会话、持久状态置 online、广播 user_online
func (g *Gateway) Connect(ctx context.Context, c *Client) error {
	if c.UserID == "" {
		return errs.ErrValidation.WrapMsg("user_id is required")
	}
	g.Reg.AddSession(c)

	if err := g.Store.SetUserStatus(ctx, c.UserID, "online"); err != nil {
		// 登记回滚：失败的连接不能留下会话残影
		g.Reg.RemoveSession(c.ConnID)
		return errs.ErrStorage.WrapMsg("set status online: " + err.Error())
	}
	if g.Presence != nil {
		if err := g.Presence.Online(ctx, c.UserID, g.GatewayID); err != nil {
			logger.Warnf("[gateway] presence online user=%s err: %v", c.UserID, err)
		}
	}

	g.publish(ctx, bus.ChannelUserStatus, bus.EventUserOnline, bus.PresenceData{
		UserID:    c.UserID,
		Timestamp: nowMS(),
	})
	logger.Infof("[gateway] connected user=%s conn=%s", c.UserID, c.ConnID)
	return nil
}

// Disconnect 摘会话；未知连接为 no-op（幂等）。
// 用户还有其他设备在线时只摘会话，持久状态与 user_offline 广播
// 留到最后一条会话下线才做，避免多端用户反复闪离线。
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	userID, last, ok := g.Reg.RemoveSession(connID)
	if !ok {
		return
	}
	if !last {
		logger.Infof("[gateway] disconnected user=%s conn=%s (other sessions remain)", userID, connID)
		return
	}
	if err := g.Store.SetUserStatus(ctx, userID, "offline"); err != nil {
		logger.Warnf("[gateway] set status offline user=%s err: %v", userID, err)
	}
	if g.Presence != nil {
		if err := g.Presence.Offline(ctx, userID, g.GatewayID); err != nil {
			logger.Warnf("[gateway] presence offline user=%s err: %v", userID, err)
		}
	}

	g.publish(ctx, bus.ChannelUserStatus, bus.EventUserOffline, bus.PresenceData{
		UserID:    userID,
		Timestamp: nowMS(),
	})
	logger.Infof("[gateway] disconnected user=%s conn=%s", userID, connID)
}

// SubscribeRoom 加入房间集合并广播 room_subscribed
func (g *Gateway) SubscribeRoom(ctx context.Context, c *Client, req SubscribeRoomReq) error {
	if req.RoomID == "" || req.UserID == "" {
		return errs.ErrValidation.WrapMsg("roomId and userId are required")
	}
	g.Reg.JoinRoom(req.RoomID, c.ConnID)

	g.publish(ctx, bus.ChannelRoomEvents, bus.EventRoomSubscribed, bus.RoomData{
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		Timestamp: nowMS(),
	})
	return nil
}

// UnsubscribeRoom 对称退出，同时清掉该用户在房间里的 typing 状态
func (g *Gateway) UnsubscribeRoom(ctx context.Context, c *Client, req SubscribeRoomReq) error {
	if req.RoomID == "" || req.UserID == "" {
		return errs.ErrValidation.WrapMsg("roomId and userId are required")
	}
	g.Reg.LeaveRoom(req.RoomID, c.ConnID)
	g.Reg.SetTyping(req.RoomID, req.UserID, false)

	g.publish(ctx, bus.ChannelRoomEvents, bus.EventRoomUnsubscribed, bus.RoomData{
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		Timestamp: nowMS(),
	})
	return nil
}

// Message 组装消息记录（新ID、创建时间、readBy=[发送者]）、落库、广播 new_message
func (g *Gateway) Message(ctx context.Context, c *Client, req MessageReq) error {
	if req.RoomID == "" || req.SenderID == "" || req.Content == "" {
		return errs.ErrValidation.WrapMsg("roomId, senderId, and content are required")
	}
	rec := &bus.MessageData{
		ID:        uuid.NewString(),
		RoomID:    req.RoomID,
		SenderID:  req.SenderID,
		Content:   req.Content,
		CreatedAt: nowMS(),
		ReadBy:    []string{req.SenderID},
	}
	if _, err := g.Store.InsertMessage(ctx, rec); err != nil {
		return errs.ErrStorage.WrapMsg("insert message: " + err.Error())
	}

	g.publish(ctx, bus.ChannelMessageEvents, bus.EventNewMessage, rec)
	return nil
}

// Typing 更新本地 typing 集合；落库尽力而为、不挡广播
func (g *Gateway) Typing(ctx context.Context, c *Client, req TypingReq) error {
	if req.RoomID == "" || req.UserID == "" {
		return errs.ErrValidation.WrapMsg("roomId and userId are required")
	}
	g.Reg.SetTyping(req.RoomID, req.UserID, req.IsTyping)

	userID, typing := req.UserID, req.IsTyping
	safe.Go("typing-store", func() {
		if err := g.Store.SetUserTyping(context.Background(), userID, typing); err != nil {
			logger.Warnf("[gateway] set typing user=%s err: %v", userID, err)
		}
	})

	g.publish(ctx, bus.ChannelTypingEvents, bus.EventTypingStatus, bus.TypingData{
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		IsTyping:  req.IsTyping,
		Timestamp: nowMS(),
	})
	return nil
}

// ReadMessage 已读集合 add-to-set（重复读不报错），再广播 message_read
func (g *Gateway) ReadMessage(ctx context.Context, c *Client, req ReadMessageReq) error {
	if req.MessageID == "" || req.UserID == "" || req.RoomID == "" {
		return errs.ErrValidation.WrapMsg("messageId, userId, and roomId are required")
	}
	if err := g.Store.AppendMessageReader(ctx, req.MessageID, req.UserID); err != nil {
		return errs.ErrStorage.WrapMsg("append reader: " + err.Error())
	}

	g.publish(ctx, bus.ChannelMessageEvents, bus.EventMessageRead, bus.ReadData{
		MessageID: req.MessageID,
		UserID:    req.UserID,
		RoomID:    req.RoomID,
		Timestamp: nowMS(),
	})
	return nil
}

// HandleFrame 按类型分发入站帧。处理中的 panic 在这里兜住，
// 失败统一转成 error 帧回给来源连接。
func (g *Gateway) HandleFrame(ctx context.Context, c *Client, f *ClientFrame) {
	var err error
	if rec := safe.Call(func() { err = g.dispatchFrame(ctx, c, f) }); rec != nil {
		err = errs.New("internal error")
	}
	if err != nil {
		logger.Warnf("[gateway] frame type=%s conn=%s err: %v", f.Type, c.ConnID, err)
		c.Push(BuildErrorFrame(errMessage(err)))
	}
}

func (g *Gateway) dispatchFrame(ctx context.Context, c *Client, f *ClientFrame) error {
	switch f.Type {
	case FrameSubscribeRoom:
		var req SubscribeRoomReq
		if err := decodeFramePayload(f, &req); err != nil {
			return err
		}
		return g.SubscribeRoom(ctx, c, req)
	case FrameUnsubscribeRoom:
		var req SubscribeRoomReq
		if err := decodeFramePayload(f, &req); err != nil {
			return err
		}
		return g.UnsubscribeRoom(ctx, c, req)
	case FrameMessage:
		var req MessageReq
		if err := decodeFramePayload(f, &req); err != nil {
			return err
		}
		return g.Message(ctx, c, req)
	case FrameTyping:
		var req TypingReq
		if err := decodeFramePayload(f, &req); err != nil {
			return err
		}
		return g.Typing(ctx, c, req)
	case FrameReadMessage:
		var req ReadMessageReq
		if err := decodeFramePayload(f, &req); err != nil {
			return err
		}
		return g.ReadMessage(ctx, c, req)
	default:
		return errs.ErrValidation.WrapMsg("unknown frame type: " + f.Type)
	}
}

// publish 失败只降级实时投递：权威写入已经生效，不回滚、不打断操作
func (g *Gateway) publish(ctx context.Context, channel, typ string, data any) {
	ev, err := bus.NewEvent(channel, typ, data)
	if err != nil {
		logger.Errorf("[gateway] build event channel=%s type=%s err: %v", channel, typ, err)
		return
	}
	if err := g.Pub.Publish(ctx, ev); err != nil {
		logger.Errorf("[gateway] fan-out degraded channel=%s type=%s: %v", channel, typ, err)
	}
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
