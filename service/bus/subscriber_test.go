package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newCollector() *collector {
	return &collector{ch: make(chan Event, 64)}
}

func (c *collector) handler(_ context.Context, ev Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.ch <- ev
	return nil
}

func (c *collector) waitOne(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-c.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func publishOn(t *testing.T, b *MemoryBus, channel, typ string, data any) {
	t.Helper()
	ev, err := NewEvent(channel, typ, data)
	require.NoError(t, err)
	raw, err := ev.Encode()
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), channel, raw))
}

func TestSubscriberDeliversEvents(t *testing.T) {
	req := require.New(t)
	b := NewMemoryBus()
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewSubscriberLoop(b, ChannelRoomEvents, col.handler, 10*time.Millisecond).Start(ctx)
	waitSubscribed(t, b, ChannelRoomEvents, 1)

	publishOn(t, b, ChannelRoomEvents, EventRoomSubscribed, RoomData{RoomID: "r1", UserID: "u1", Timestamp: 1})
	ev := col.waitOne(t)
	req.Equal(EventRoomSubscribed, ev.Type)
	req.Equal("r1", ev.RoomID())
}

func TestSubscriberSkipsMalformedPayload(t *testing.T) {
	req := require.New(t)
	b := NewMemoryBus()
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewSubscriberLoop(b, ChannelMessageEvents, col.handler, 10*time.Millisecond).Start(ctx)
	waitSubscribed(t, b, ChannelMessageEvents, 1)

	// 坏载荷被跳过，循环继续吃后面的消息
	req.NoError(b.Publish(context.Background(), ChannelMessageEvents, []byte(`{broken`)))
	publishOn(t, b, ChannelMessageEvents, EventNewMessage, MessageData{ID: "m1", RoomID: "r1"})

	ev := col.waitOne(t)
	req.Equal(EventNewMessage, ev.Type)
	col.mu.Lock()
	req.Len(col.events, 1)
	col.mu.Unlock()
}

func TestSubscriberReconnectsAfterKick(t *testing.T) {
	req := require.New(t)
	b := NewMemoryBus()
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewSubscriberLoop(b, ChannelTypingEvents, col.handler, 10*time.Millisecond).Start(ctx)
	waitSubscribed(t, b, ChannelTypingEvents, 1)

	// 模拟后端断连：订阅被掐断后循环应自动重建而不是死掉
	b.Kick(ChannelTypingEvents)
	waitSubscribed(t, b, ChannelTypingEvents, 1)

	publishOn(t, b, ChannelTypingEvents, EventTypingStatus, TypingData{RoomID: "r1", UserID: "u1", IsTyping: true})
	ev := col.waitOne(t)
	req.Equal(EventTypingStatus, ev.Type)
}

func TestSubscriberStopsOnCancel(t *testing.T) {
	b := NewMemoryBus()
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	loop := NewSubscriberLoop(b, ChannelUserStatus, col.handler, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	waitSubscribed(t, b, ChannelUserStatus, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on cancellation")
	}
}

func TestEveryAttachedLoopReceivesEachEvent(t *testing.T) {
	req := require.New(t)
	b := NewMemoryBus()
	a, c := newCollector(), newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewSubscriberLoop(b, ChannelUserStatus, a.handler, 10*time.Millisecond).Start(ctx)
	NewSubscriberLoop(b, ChannelUserStatus, c.handler, 10*time.Millisecond).Start(ctx)
	waitSubscribed(t, b, ChannelUserStatus, 2)

	for i := 0; i < 3; i++ {
		publishOn(t, b, ChannelUserStatus, EventUserOnline, PresenceData{UserID: "u1", Timestamp: int64(i)})
	}
	for i := 0; i < 3; i++ {
		a.waitOne(t)
		c.waitOne(t)
	}
	a.mu.Lock()
	req.Len(a.events, 3)
	a.mu.Unlock()
}

func TestDedupMiddlewareSkipsRedelivery(t *testing.T) {
	req := require.New(t)
	col := newCollector()
	h := Chain(col.handler, DedupMiddleware(NewMemSeen(time.Minute), time.Minute))

	ev, err := NewEvent(ChannelUserStatus, EventUserOnline, PresenceData{UserID: "u1", Timestamp: 7})
	req.NoError(err)

	req.NoError(h(context.Background(), ev))
	req.NoError(h(context.Background(), ev))
	col.mu.Lock()
	req.Len(col.events, 1)
	col.mu.Unlock()
}

// waitSubscribed 等到频道上挂满 n 条订阅
func waitSubscribed(t *testing.T, b *MemoryBus, channel string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		cnt := len(b.subs[channel])
		b.mu.Unlock()
		if cnt >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %s never reached %d subscribers", channel, n)
}
