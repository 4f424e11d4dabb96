package chat

import (
	"context"
	"testing"
	"time"

	"ChatRelay/service/bus"

	"github.com/stretchr/testify/require"
)

func recvPush(t *testing.T, c *Client) bus.Event {
	t.Helper()
	select {
	case payload := <-c.Send:
		ev, err := bus.Decode("", payload)
		require.NoError(t, err)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("conn %s never received a push", c.ConnID)
		return bus.Event{}
	}
}

func requireNoPush(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Send:
		t.Fatalf("conn %s got a push it should not see", c.ConnID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherScopesRoomEvents(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	defer reg.Close()
	fanout := NewFanout(2, 64)
	defer fanout.Close()
	d := NewDispatcher(reg, fanout)

	inR1a, inR1b, inR2 := newTestClient("c1", "u1"), newTestClient("c2", "u2"), newTestClient("c3", "u3")
	for _, c := range []*Client{inR1a, inR1b, inR2} {
		reg.AddSession(c)
	}
	reg.JoinRoom("r1", "c1")
	reg.JoinRoom("r1", "c2")
	reg.JoinRoom("r2", "c3")

	ev, err := bus.NewEvent(bus.ChannelMessageEvents, bus.EventNewMessage, bus.MessageData{
		ID: "m1", RoomID: "r1", SenderID: "u1", Content: "hi", CreatedAt: 1, ReadBy: []string{"u1"},
	})
	req.NoError(err)
	req.NoError(d.Handler(bus.ChannelMessageEvents)(context.Background(), ev))

	req.Equal(bus.EventNewMessage, recvPush(t, inR1a).Type)
	req.Equal(bus.EventNewMessage, recvPush(t, inR1b).Type)
	requireNoPush(t, inR2)
}

func TestDispatcherBroadcastsPresence(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	defer reg.Close()
	fanout := NewFanout(2, 64)
	defer fanout.Close()
	d := NewDispatcher(reg, fanout)

	a, b := newTestClient("c1", "u1"), newTestClient("c2", "u2")
	reg.AddSession(a)
	reg.AddSession(b)

	ev, err := bus.NewEvent(bus.ChannelUserStatus, bus.EventUserOffline, bus.PresenceData{UserID: "u9", Timestamp: 1})
	req.NoError(err)
	req.NoError(d.Handler(bus.ChannelUserStatus)(context.Background(), ev))

	// presence 事件不分房间，所有本地连接都能看到
	req.Equal(bus.EventUserOffline, recvPush(t, a).Type)
	req.Equal(bus.EventUserOffline, recvPush(t, b).Type)
}

// 跨进程场景：两个网关共享同一条总线。u1 连在 A 上并订阅 r1；
// u2 从 B 上发消息，u1 必须收到 new_message。
func TestCrossGatewayFanout(t *testing.T) {
	req := require.New(t)
	shared := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newSide := func(gwID string) (*Server, *Gateway, *Registry) {
		reg := NewRegistry()
		t.Cleanup(reg.Close)
		fanout := NewFanout(2, 64)
		t.Cleanup(fanout.Close)
		pub := bus.NewPublisher(shared, 3, time.Millisecond)
		gw := NewGateway(gwID, reg, newFakeStore(), nil, pub)
		srv := NewServer(ServerConf{GatewayID: gwID, RetryDelay: 10 * time.Millisecond}, shared, reg, fanout, gw)
		srv.StartLoops(ctx)
		return srv, gw, reg
	}

	_, gwA, regA := newSide("gw-a")
	_, gwB, _ := newSide("gw-b")

	// Cleanup 后进先出：先停总线与循环，再让上面注册的 fanout 收尾
	t.Cleanup(func() {
		cancel()
		_ = shared.Close()
		time.Sleep(20 * time.Millisecond)
	})

	// 等两边的订阅循环都挂上（4 频道 x 2 进程）
	req.Eventually(func() bool {
		for _, ch := range bus.Channels() {
			if shared.SubscriberCount(ch) < 2 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	u1 := newTestClient("a-c1", "u1")
	req.NoError(gwA.Connect(ctx, u1))
	drain(u1) // 吃掉自己的 user_online 回放
	req.NoError(gwA.SubscribeRoom(ctx, u1, SubscribeRoomReq{RoomID: "r1", UserID: "u1"}))
	req.Equal(1, len(regA.ListRoom("r1")))
	drain(u1) // 吃掉 room_subscribed

	u2 := newTestClient("b-c1", "u2")
	req.NoError(gwB.Connect(ctx, u2))
	drain(u1) // u2 上线的 presence 广播
	req.NoError(gwB.SubscribeRoom(ctx, u2, SubscribeRoomReq{RoomID: "r1", UserID: "u2"}))
	drain(u1) // u2 的 room_subscribed（r1 作用域，u1 也收）

	req.NoError(gwB.Message(ctx, u2, MessageReq{RoomID: "r1", SenderID: "u2", Content: "hello"}))

	ev := waitForType(t, u1, bus.EventNewMessage)
	var data bus.MessageData
	req.NoError(ev.DecodeData(&data))
	req.Equal("hello", data.Content)
	req.Equal("u2", data.SenderID)
	req.Equal([]string{"u2"}, data.ReadBy)
}

// waitForType 一直读推送直到碰到目标类型（presence/room 事件可能先到）
func waitForType(t *testing.T, c *Client, typ string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-c.Send:
			ev, err := bus.Decode("", payload)
			require.NoError(t, err)
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("conn %s never received %s", c.ConnID, typ)
			return bus.Event{}
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}
