package notify

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ===== 配置 =====

type ManagerConf struct {
	SessionTTL  time.Duration    // 会话 TTL（心跳续期）
	SweepEvery  time.Duration    // 清理周期
	MaxPerUser  int              // 每用户最大连接数（<=0 不限制）
	EvictOldest bool             // 超限时淘汰最老连接（否则 AddSession 报错）
	Clock       func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 2 * time.Minute
	}
}

// ===== 数据结构 =====

// WsConn 一条已鉴权的通知会话。
// 握手阶段就完成鉴权（UserID 必定非空），但要等 join 之后才进入
// 用户投递索引；Joined=false 的会话收不到任何广播。
type WsConn struct {
	SessionID string
	UserID    string
	Joined    bool

	Conn   *websocket.Conn
	Remote net.Addr

	CreatedAt time.Time
	UpdatedAt time.Time

	TTL       time.Duration
	ExpireAt  time.Time // 到期时间（过期由 sweeper 清理）
	Heartbeat time.Time // 最近心跳时间

	writeMu sync.Mutex // gorilla 要求单写者
}

// WriteText 带写超时的文本帧写出
func (w *WsConn) WriteText(data []byte, deadlineSec int) error {
	if w == nil || w.Conn == nil {
		return errors.New("nil conn")
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.Conn.SetWriteDeadline(time.Now().Add(time.Duration(deadlineSec) * time.Second)); err != nil {
		return err
	}
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

// WriteControl 控制帧（ping/close）
func (w *WsConn) WriteControl(messageType int, data []byte, deadlineSec int) error {
	if w == nil || w.Conn == nil {
		return errors.New("nil conn")
	}
	return w.Conn.WriteControl(messageType, data, time.Now().Add(time.Duration(deadlineSec)*time.Second))
}

type ConnManager struct {
	mu        sync.RWMutex
	bySession map[string]*WsConn            // 主索引：sessionID -> conn
	byUser    map[string]map[string]*WsConn // 辅助索引：userID -> (sessionID -> conn)

	conf     ManagerConf
	stopOnce sync.Once
	stopCh   chan struct{}
	nodeId   string // 节点ID

	// 本地用户上线/下线通知（fanout 订阅面用）
	onFirstConn func(userID string)
	onLastGone  func(userID string)
}

// ===== 构造/关闭 =====

func NewConnManager(nodeId string) *ConnManager {
	return NewConnManagerWithConf(ManagerConf{}, nodeId)
}

func NewConnManagerWithConf(conf ManagerConf, nodeId string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		bySession: make(map[string]*WsConn),
		byUser:    make(map[string]map[string]*WsConn),
		conf:      conf,
		nodeId:    nodeId,
		stopCh:    make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) NodeId() string {
	return m.nodeId
}

// OnUserPresence 注册本地首连/末连回调；须在接入流量前调用
func (m *ConnManager) OnUserPresence(first, last func(userID string)) {
	m.onFirstConn = first
	m.onLastGone = last
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.bySession {
		closeQuiet(w.Conn)
	}
	m.bySession = map[string]*WsConn{}
	m.byUser = map[string]map[string]*WsConn{}
}

// ===== 会话登记 / 入房 / 心跳 / 移除 =====

// AddAuthed 握手成功后登记会话；只进主索引，不进用户投递索引
func (m *ConnManager) AddAuthed(user, sessionID string, conn *websocket.Conn) (*WsConn, error) {
	if user == "" || sessionID == "" || conn == nil {
		return nil, errors.New("user/sessionID/conn empty")
	}
	now := m.conf.Clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySession[sessionID]; exists {
		return nil, errors.New("sessionID exists")
	}

	w := &WsConn{
		SessionID: sessionID,
		UserID:    user,
		Conn:      conn,
		Remote:    conn.RemoteAddr(),
		CreatedAt: now,
		UpdatedAt: now,
		TTL:       m.conf.SessionTTL,
		ExpireAt:  now.Add(m.conf.SessionTTL),
		Heartbeat: now,
	}
	m.bySession[sessionID] = w
	return w, nil
}

// JoinUser 把会话挂进用户投递索引；此后该会话开始接收该用户的广播。
// 会触发最大连接数/挤下线策略。幂等：重复 join 直接成功。
func (m *ConnManager) JoinUser(sessionID string) error {
	if sessionID == "" {
		return errors.New("sessionID empty")
	}
	now := m.conf.Clock()

	var evicted *WsConn
	var firstForUser bool
	var user string

	m.mu.Lock()
	w, ok := m.bySession[sessionID]
	if !ok || w.Conn == nil {
		m.mu.Unlock()
		return errors.New("sessionID not found")
	}
	if w.Joined {
		m.mu.Unlock()
		return nil
	}
	user = w.UserID

	if m.conf.MaxPerUser > 0 && len(m.byUser[user]) >= m.conf.MaxPerUser {
		if !m.conf.EvictOldest {
			m.mu.Unlock()
			return errors.New("too many connections for user")
		}
		evicted = m.evictOldestLocked(user)
	}

	if m.byUser[user] == nil {
		m.byUser[user] = make(map[string]*WsConn)
		firstForUser = true
	}
	m.byUser[user][sessionID] = w
	w.Joined = true
	w.UpdatedAt = now
	m.mu.Unlock()

	if evicted != nil {
		closeQuiet(evicted.Conn)
	}
	if firstForUser && m.onFirstConn != nil {
		m.onFirstConn(user)
	}
	return nil
}

// IsJoined 该会话是否已入房（跨协程读 Joined 走这里）
func (m *ConnManager) IsJoined(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.bySession[sessionID]
	return ok && w.Joined
}

// GetSession 按 sessionID 查会话
func (m *ConnManager) GetSession(sessionID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.bySession[sessionID]
	return w, ok
}

// Heartbeat 刷新某条会话的心跳与到期时间
func (m *ConnManager) Heartbeat(sessionID string) error {
	if sessionID == "" {
		return errors.New("sessionID empty")
	}
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.bySession[sessionID]
	if !ok || w.Conn == nil {
		return errors.New("sessionID not found")
	}
	w.Heartbeat = now
	w.ExpireAt = now.Add(w.TTL)
	w.UpdatedAt = now
	return nil
}

// AttachPongHandler 绑定 gorilla 的 PongHandler，自动心跳续期
func (m *ConnManager) AttachPongHandler(conn *websocket.Conn, sessionID string) {
	if conn == nil || sessionID == "" {
		return
	}
	conn.SetPongHandler(func(appData string) error {
		_ = m.Heartbeat(sessionID) // 忽略错误：连接可能刚好被清理
		return nil
	})
}

// RemoveSession 关闭并移除指定会话（幂等）
func (m *ConnManager) RemoveSession(sessionID string) {
	if sessionID == "" {
		return
	}
	var lastForUser string

	m.mu.Lock()
	w, ok := m.bySession[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bySession, sessionID)
	if mm := m.byUser[w.UserID]; mm != nil {
		delete(mm, sessionID)
		if len(mm) == 0 {
			delete(m.byUser, w.UserID)
			lastForUser = w.UserID
		}
	}
	m.mu.Unlock()

	closeQuiet(w.Conn)
	if lastForUser != "" && m.onLastGone != nil {
		m.onLastGone(lastForUser)
	}
}

// ===== 投递 =====

// SendOne 按 sessionID 发送
func (m *ConnManager) SendOne(sessionID string, data []byte) error {
	m.mu.RLock()
	w, ok := m.bySession[sessionID]
	m.mu.RUnlock()
	if !ok {
		return errors.New("sessionID not found")
	}
	return w.WriteText(data, 5)
}

// BroadcastUser 向某用户所有本地会话发送；单条失败不影响其余
func (m *ConnManager) BroadcastUser(user string, data []byte) error {
	m.mu.RLock()
	conns := make([]*WsConn, 0, len(m.byUser[user]))
	for _, w := range m.byUser[user] {
		conns = append(conns, w)
	}
	m.mu.RUnlock()

	var lastErr error
	for _, w := range conns {
		if err := w.WriteText(data, 5); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// HasUser 该用户在本节点是否有会话
func (m *ConnManager) HasUser(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[user]) > 0
}

// CountUser 该用户本节点会话数
func (m *ConnManager) CountUser(user string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[user])
}

// ListUserSessions 列出用户所有会话ID
func (m *ConnManager) ListUserSessions(user string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byUser[user]))
	for sid := range m.byUser[user] {
		out = append(out, sid)
	}
	return out
}

// ===== 清理协程 =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.sweepOnce(now)
		}
	}
}

func (m *ConnManager) sweepOnce(now time.Time) {
	var expired []*WsConn
	var lastGone []string

	m.mu.Lock()
	for sid, w := range m.bySession {
		if now.After(w.ExpireAt) {
			// 收集后统一关闭，避免持锁期间关闭 socket
			expired = append(expired, w)
			delete(m.bySession, sid)
			if mm := m.byUser[w.UserID]; mm != nil {
				delete(mm, sid)
				if len(mm) == 0 {
					delete(m.byUser, w.UserID)
					lastGone = append(lastGone, w.UserID)
				}
			}
		}
	}
	m.mu.Unlock()

	for _, w := range expired {
		closeQuiet(w.Conn)
	}
	if m.onLastGone != nil {
		for _, u := range lastGone {
			m.onLastGone(u)
		}
	}
}

// ===== 最大连接数/挤下线 =====

// 持锁调用；返回被淘汰的连接（解锁后关闭）
func (m *ConnManager) evictOldestLocked(user string) *WsConn {
	mm := m.byUser[user]
	var oldest *WsConn
	for _, w := range mm {
		if oldest == nil || w.CreatedAt.Before(oldest.CreatedAt) {
			oldest = w
		}
	}
	if oldest != nil {
		delete(mm, oldest.SessionID)
		delete(m.bySession, oldest.SessionID)
	}
	return oldest
}

// ===== 工具函数 =====

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
