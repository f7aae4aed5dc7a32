package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	notifymodel "FProject/module/notify/model"
	notify "FProject/service/notify"
	errs "FProject/tools/errs"

	"github.com/gorilla/websocket"
)

// ===== 测试替身 =====

type memStore struct {
	mu       sync.Mutex
	unread   int64
	inserted []*notifymodel.Notification
}

func (s *memStore) Insert(_ context.Context, userID, message, category string) (*notifymodel.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &notifymodel.Notification{
		ID:        "n-" + message,
		UserID:    userID,
		Message:   message,
		Category:  notifymodel.ValidCategory(category),
		CreatedAt: time.Now().UTC(),
	}
	s.inserted = append(s.inserted, n)
	s.unread++
	return n, nil
}

func (s *memStore) MarkRead(_ context.Context, _, notifyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.inserted {
		if n.ID == notifyID && !n.IsRead {
			n.IsRead = true
			s.unread--
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CountUnread(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread, nil
}

// loopPresence 把用户频道发布直接回投到本地连接（单节点等价路径）
type loopPresence struct {
	mgr *notify.ConnManager

	mu         sync.Mutex
	registered []string
	offlined   []string
}

func (p *loopPresence) PublishUser(_ context.Context, userID string, payload []byte) error {
	if p.mgr.HasUser(userID) {
		return p.mgr.BroadcastUser(userID, payload)
	}
	return nil
}

func (p *loopPresence) Register(_ context.Context, userID, sessionID string) *errs.CodeError {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, userID+"/"+sessionID)
	return nil
}

func (p *loopPresence) Offline(_ context.Context, userID, sessionID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offlined = append(p.offlined, userID+"/"+sessionID)
	return true, nil
}

func (p *loopPresence) Heartbeat(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upg := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverCh <- c
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	server := <-serverCh

	return server, client, func() {
		_ = client.Close()
		_ = server.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, c *websocket.Conn) notify.EventFrame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f notify.EventFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return f
}

// 合法 join：入投递索引、登记在线、单推未读数；之后的 Dispatch 能送达
func TestJoinSuccessDeliversNotifications(t *testing.T) {
	store := &memStore{}
	pres := &loopPresence{}
	notifier := notify.NewNotifier(store, pres, nil)
	rs := notify.NewReadState(store, pres)
	s := notify.NewServer(notify.ServerConf{NodeID: "gw-test"}, notifier, rs, pres)
	defer s.Close()
	pres.mgr = s.ConnMgr()

	server, client, cleanup := wsPair(t)
	defer cleanup()

	rec, err := s.ConnMgr().AddAuthed("user_a", "s1", server)
	if err != nil {
		t.Fatalf("AddAuthed: %v", err)
	}

	h := NewJoinHandler()
	frame := &notify.EventFrame{
		Event: notify.EventJoin,
		Data:  map[string]any{"userId": "user_a"},
	}
	if err := h.Handle(&notify.NotifyContext{S: s}, frame, rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !s.ConnMgr().HasUser("user_a") {
		t.Fatal("user missing from delivery index after join")
	}
	pres.mu.Lock()
	if len(pres.registered) != 1 || pres.registered[0] != "user_a/s1" {
		t.Errorf("registered = %v, want [user_a/s1]", pres.registered)
	}
	pres.mu.Unlock()

	// 入房对账：先收到一帧未读数
	f := readFrame(t, client)
	if f.Event != notify.EventUnreadCount {
		t.Fatalf("event = %q, want unreadCount", f.Event)
	}
	if got := f.Data["count"].(float64); got != 0 {
		t.Errorf("count = %v, want 0", got)
	}

	// 随后分发的通知直达这条连接
	if _, err := notifier.Dispatch(context.Background(), "user_a", "class booked", "success"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f = readFrame(t, client)
	if f.Event != notify.EventNotification {
		t.Fatalf("event = %q, want notification", f.Event)
	}
	if f.Data["message"] != "class booked" {
		t.Errorf("message = %v", f.Data["message"])
	}
	f = readFrame(t, client)
	if f.Event != notify.EventUnreadCount {
		t.Fatalf("event = %q, want unreadCount", f.Event)
	}
	if got := f.Data["count"].(float64); got != 1 {
		t.Errorf("count = %v, want 1", got)
	}

	// 别的用户收不到
	if s.ConnMgr().HasUser("user_b") {
		t.Error("unexpected user_b in delivery index")
	}
}

// 身份不符的 join：回 error 帧并强制断开，不进投递索引
func TestJoinMismatchDisconnects(t *testing.T) {
	s := notify.NewServer(notify.ServerConf{NodeID: "gw-test"}, nil, nil, nil)
	defer s.Close()

	server, client, cleanup := wsPair(t)
	defer cleanup()

	rec, err := s.ConnMgr().AddAuthed("user_a", "s1", server)
	if err != nil {
		t.Fatalf("AddAuthed: %v", err)
	}

	h := NewJoinHandler()
	frame := &notify.EventFrame{
		Event: notify.EventJoin,
		Data:  map[string]any{"userId": "user_b"}, // 别人的房
	}
	if err := h.Handle(&notify.NotifyContext{S: s}, frame, rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// error 帧先到
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var got notify.EventFrame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != notify.EventError {
		t.Errorf("event = %q, want error", got.Event)
	}
	if code := got.Data["code"].(float64); int(code) != errs.CodeJoinMismatch {
		t.Errorf("code = %v, want %d", code, errs.CodeJoinMismatch)
	}

	// 随后连接被关闭
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("expected connection closed after mismatch")
	}

	// 会话彻底移除
	if _, ok := s.ConnMgr().GetSession("s1"); ok {
		t.Error("session should be removed")
	}
	if s.ConnMgr().HasUser("user_a") {
		t.Error("user must not be in delivery index")
	}
}

// 载荷缺 userId 同样按协议违例处理
func TestJoinMissingUserIDDisconnects(t *testing.T) {
	s := notify.NewServer(notify.ServerConf{NodeID: "gw-test"}, nil, nil, nil)
	defer s.Close()

	server, client, cleanup := wsPair(t)
	defer cleanup()

	rec, err := s.ConnMgr().AddAuthed("user_a", "s1", server)
	if err != nil {
		t.Fatalf("AddAuthed: %v", err)
	}

	h := NewJoinHandler()
	if err := h.Handle(&notify.NotifyContext{S: s}, &notify.EventFrame{Event: notify.EventJoin, Data: map[string]any{}}, rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var got notify.EventFrame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != notify.EventError {
		t.Errorf("event = %q, want error", got.Event)
	}
	if _, ok := s.ConnMgr().GetSession("s1"); ok {
		t.Error("session should be removed")
	}
}
