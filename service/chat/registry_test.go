package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(connID, userID string) *Client {
	return NewClient(connID, userID, nil, 8)
}

func TestRegistrySessionLifecycle(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	defer r.Close()

	c := newTestClient("c1", "u1")
	r.AddSession(c)
	req.Equal(1, r.SessionCount())
	req.Same(c, r.GetByConnID("c1"))

	r.JoinRoom("r1", "c1")
	r.JoinRoom("r2", "c1")
	r.SetTyping("r1", "u1", true)

	userID, last, ok := r.RemoveSession("c1")
	req.True(ok)
	req.True(last)
	req.Equal("u1", userID)

	// 断开后不留任何痕迹
	req.Equal(0, r.SessionCount())
	req.Empty(r.ListRoom("r1"))
	req.Empty(r.ListRoom("r2"))
	req.Empty(r.TypingUsers("r1"))

	// 再次摘除同一连接是 no-op
	_, _, ok = r.RemoveSession("c1")
	req.False(ok)
}

func TestRegistryRoomMembership(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	defer r.Close()

	a, b, c := newTestClient("ca", "u1"), newTestClient("cb", "u2"), newTestClient("cc", "u3")
	r.AddSession(a)
	r.AddSession(b)
	r.AddSession(c)
	r.JoinRoom("r1", "ca")
	r.JoinRoom("r1", "cb")
	r.JoinRoom("r2", "cc")

	req.Len(r.ListRoom("r1"), 2)
	req.Len(r.ListRoom("r2"), 1)

	r.LeaveRoom("r1", "ca")
	members := r.ListRoom("r1")
	req.Len(members, 1)
	req.Equal("cb", members[0].ConnID)

	// 未登记的连接进不了房间
	r.JoinRoom("r1", "ghost")
	req.Len(r.ListRoom("r1"), 1)
}

func TestRegistryTypingSetSemantics(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	defer r.Close()

	r.SetTyping("r1", "u1", true)
	r.SetTyping("r1", "u1", true) // 重复置位不产生重复
	r.SetTyping("r1", "u2", true)
	req.ElementsMatch([]string{"u1", "u2"}, r.TypingUsers("r1"))

	r.SetTyping("r1", "u1", false)
	req.Equal([]string{"u2"}, r.TypingUsers("r1"))

	r.SetTyping("r1", "u2", false)
	req.Empty(r.TypingUsers("r1"))
}

func TestRegistryTypingExpiry(t *testing.T) {
	req := require.New(t)
	r := NewRegistryWithConf(RegistryConf{
		TypingTTL:  30 * time.Millisecond,
		SweepEvery: 10 * time.Millisecond,
	})
	defer r.Close()

	r.SetTyping("r1", "u1", true)
	req.Eventually(func() bool {
		return len(r.TypingUsers("r1")) == 0
	}, time.Second, 10*time.Millisecond, "stale typing entry was never swept")
}

func TestRegistryMultiDevice(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	defer r.Close()

	d1, d2 := newTestClient("c1", "u1"), newTestClient("c2", "u1")
	r.AddSession(d1)
	r.AddSession(d2)
	r.SetTyping("r1", "u1", true)

	// 还有别的设备在线：typing 状态保留
	_, last, ok := r.RemoveSession("c1")
	req.True(ok)
	req.False(last)
	req.Equal([]string{"u1"}, r.TypingUsers("r1"))

	// 最后一台设备下线：typing 一并清掉
	_, last, ok = r.RemoveSession("c2")
	req.True(ok)
	req.True(last)
	req.Empty(r.TypingUsers("r1"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", n)
			userID := fmt.Sprintf("u%d", n%8)
			c := newTestClient(connID, userID)
			r.AddSession(c)
			r.JoinRoom("r1", connID)
			r.SetTyping("r1", userID, true)
			r.ListRoom("r1")
			r.TypingUsers("r1")
			r.LeaveRoom("r1", connID)
			r.RemoveSession(connID)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 0, r.SessionCount())
	require.Empty(t, r.ListRoom("r1"))
}
