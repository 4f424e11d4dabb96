package chat

import (
	"sync"
	"time"
)

// ===== 配置 =====

type RegistryConf struct {
	TypingTTL  time.Duration    // typing 条目兜底过期时间（如 10s）
	SweepEvery time.Duration    // 清理周期（如 2s）
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *RegistryConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 10 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 2 * time.Second
	}
}

// Registry 进程本地在线状态：会话、房间成员、typing。
// 多个连接处理协程并发读写，整体由一把 RWMutex 保护，
// 原始 map 绝不外泄给调用方。无持久化；跨进程一致性走总线。
type Registry struct {
	mu       sync.RWMutex
	byConn   map[string]*Client              // conn_id -> client
	byUser   map[string]map[string]*Client   // user -> conn_id -> client
	rooms    map[string]map[string]*Client   // room -> conn_id -> client
	typing   map[string]map[string]time.Time // room -> user -> last seen typing
	conf     RegistryConf
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRegistry() *Registry {
	return NewRegistryWithConf(RegistryConf{})
}

func NewRegistryWithConf(conf RegistryConf) *Registry {
	conf.norm()
	r := &Registry{
		byConn: make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
		rooms:  make(map[string]map[string]*Client),
		typing: make(map[string]map[string]time.Time),
		conf:   conf,
		stopCh: make(chan struct{}),
	}
	go r.sweeper()
	return r
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// AddSession 登记一条在线会话
func (r *Registry) AddSession(c *Client) {
	if c == nil || c.ConnID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c
	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[c.UserID] = m
	}
	m[c.ConnID] = c
}

// RemoveSession 摘除会话，并把该连接从每个房间清掉；
// 若该用户已无其他会话，顺带清空其全部 typing 条目。
// 调用方不需要（也不应该）再做任何补充清理。
// 返回会话归属的 userID 与这是否是该用户最后一条会话；
// 未知连接返回 ok=false（幂等）。
func (r *Registry) RemoveSession(connID string) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, exists := r.byConn[connID]
	if !exists {
		return "", false, false
	}
	delete(r.byConn, connID)
	userID = c.UserID

	if m := r.byUser[userID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byUser, userID)
		}
	}

	for roomID, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}

	// 用户最后一条会话下线：typing 状态一并失效
	_, still := r.byUser[userID]
	if !still {
		for roomID, users := range r.typing {
			delete(users, userID)
			if len(users) == 0 {
				delete(r.typing, roomID)
			}
		}
	}
	return userID, !still, true
}

// JoinRoom 将连接加入房间集合
func (r *Registry) JoinRoom(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byConn[connID]
	if !ok {
		return
	}
	members := r.rooms[roomID]
	if members == nil {
		members = make(map[string]*Client)
		r.rooms[roomID] = members
	}
	members[connID] = c
}

// LeaveRoom 将连接移出房间集合
func (r *Registry) LeaveRoom(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members := r.rooms[roomID]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// SetTyping 更新 typing 状态；isTyping=false 立即摘除
func (r *Registry) SetTyping(roomID, userID string, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if isTyping {
		users := r.typing[roomID]
		if users == nil {
			users = make(map[string]time.Time)
			r.typing[roomID] = users
		}
		users[userID] = r.conf.Clock()
		return
	}
	if users := r.typing[roomID]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(r.typing, roomID)
		}
	}
}

// TypingUsers 房间内正在输入的用户
func (r *Registry) TypingUsers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := r.typing[roomID]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	return out
}

// ListRoom 房间内本地连接快照
func (r *Registry) ListRoom(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// ListAll 全部本地连接快照（presence 广播用）
func (r *Registry) ListAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// GetByConnID 按连接ID取会话
func (r *Registry) GetByConnID(connID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// SessionCount 在线会话数（统计/调试）
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// ===== typing 清理协程 =====
// 客户端掉线前没发 isTyping=false 的兜底：条目超过 TypingTTL 未刷新即摘除。

func (r *Registry) sweeper() {
	t := time.NewTicker(r.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case now := <-t.C:
			r.sweepTyping(now)
		}
	}
}

func (r *Registry) sweepTyping(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID, users := range r.typing {
		for userID, seen := range users {
			if now.Sub(seen) > r.conf.TypingTTL {
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(r.typing, roomID)
		}
	}
}
