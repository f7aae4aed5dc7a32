package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair 起一对真实的 websocket 连接（服务端侧给 manager 用，客户端侧做断言）
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

	cleanup := func() {
		_ = client.Close()
		_ = server.Close()
		srv.Close()
	}
	return server, client, cleanup
}

func readText(t *testing.T, c *websocket.Conn, timeout time.Duration) (string, error) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.ReadMessage()
	return string(data), err
}

func TestBroadcastOnlyAfterJoin(t *testing.T) {
	mgr := NewConnManagerWithConf(ManagerConf{}, "gw-test")
	defer mgr.Close()

	server, client, cleanup := wsPair(t)
	defer cleanup()

	if _, err := mgr.AddAuthed("user_a", "s1", server); err != nil {
		t.Fatalf("AddAuthed: %v", err)
	}

	// 未 join：不在投递索引里
	if mgr.HasUser("user_a") {
		t.Fatal("user should not be in delivery index before join")
	}
	_ = mgr.BroadcastUser("user_a", []byte("early"))
	if msg, err := readText(t, client, 150*time.Millisecond); err == nil {
		t.Fatalf("unexpected delivery before join: %q", msg)
	}

	if err := mgr.JoinUser("s1"); err != nil {
		t.Fatalf("JoinUser: %v", err)
	}
	if !mgr.HasUser("user_a") {
		t.Fatal("user missing from delivery index after join")
	}

	if err := mgr.BroadcastUser("user_a", []byte(`{"event":"notification"}`)); err != nil {
		t.Fatalf("BroadcastUser: %v", err)
	}
	msg, err := readText(t, client, time.Second)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if msg != `{"event":"notification"}` {
		t.Errorf("got %q", msg)
	}
}

func TestBroadcastReachesAllSessions(t *testing.T) {
	mgr := NewConnManagerWithConf(ManagerConf{}, "gw-test")
	defer mgr.Close()

	srv1, cli1, cleanup1 := wsPair(t)
	defer cleanup1()
	srv2, cli2, cleanup2 := wsPair(t)
	defer cleanup2()

	for i, sc := range []*websocket.Conn{srv1, srv2} {
		sid := []string{"s1", "s2"}[i]
		if _, err := mgr.AddAuthed("user_a", sid, sc); err != nil {
			t.Fatalf("AddAuthed %s: %v", sid, err)
		}
		if err := mgr.JoinUser(sid); err != nil {
			t.Fatalf("JoinUser %s: %v", sid, err)
		}
	}
	if got := mgr.CountUser("user_a"); got != 2 {
		t.Fatalf("CountUser = %d, want 2", got)
	}

	if err := mgr.BroadcastUser("user_a", []byte("hi")); err != nil {
		t.Fatalf("BroadcastUser: %v", err)
	}
	for _, cli := range []*websocket.Conn{cli1, cli2} {
		if msg, err := readText(t, cli, time.Second); err != nil || msg != "hi" {
			t.Errorf("read: msg=%q err=%v", msg, err)
		}
	}
}

func TestMaxPerUserEvictsOldest(t *testing.T) {
	mgr := NewConnManagerWithConf(ManagerConf{MaxPerUser: 1, EvictOldest: true}, "gw-test")
	defer mgr.Close()

	srv1, cli1, cleanup1 := wsPair(t)
	defer cleanup1()
	srv2, cli2, cleanup2 := wsPair(t)
	defer cleanup2()

	if _, err := mgr.AddAuthed("user_a", "s1", srv1); err != nil {
		t.Fatalf("AddAuthed s1: %v", err)
	}
	if err := mgr.JoinUser("s1"); err != nil {
		t.Fatalf("JoinUser s1: %v", err)
	}
	if _, err := mgr.AddAuthed("user_a", "s2", srv2); err != nil {
		t.Fatalf("AddAuthed s2: %v", err)
	}
	if err := mgr.JoinUser("s2"); err != nil {
		t.Fatalf("JoinUser s2: %v", err)
	}

	// s1 被挤下线：客户端读到关闭
	if _, err := readText(t, cli1, time.Second); err == nil {
		t.Error("expected old session closed after eviction")
	}
	if _, ok := mgr.GetSession("s1"); ok {
		t.Error("s1 should be removed")
	}

	// s2 正常收
	if err := mgr.BroadcastUser("user_a", []byte("still here")); err != nil {
		t.Fatalf("BroadcastUser: %v", err)
	}
	if msg, err := readText(t, cli2, time.Second); err != nil || msg != "still here" {
		t.Errorf("read: msg=%q err=%v", msg, err)
	}
}

func TestPresenceCallbacks(t *testing.T) {
	mgr := NewConnManagerWithConf(ManagerConf{}, "gw-test")
	defer mgr.Close()

	var mu sync.Mutex
	var firsts, lasts []string
	mgr.OnUserPresence(
		func(u string) { mu.Lock(); firsts = append(firsts, u); mu.Unlock() },
		func(u string) { mu.Lock(); lasts = append(lasts, u); mu.Unlock() },
	)

	srv1, _, cleanup1 := wsPair(t)
	defer cleanup1()
	srv2, _, cleanup2 := wsPair(t)
	defer cleanup2()

	_, _ = mgr.AddAuthed("user_a", "s1", srv1)
	_ = mgr.JoinUser("s1")
	_, _ = mgr.AddAuthed("user_a", "s2", srv2)
	_ = mgr.JoinUser("s2")

	mu.Lock()
	if len(firsts) != 1 || firsts[0] != "user_a" {
		t.Errorf("firsts = %v, want [user_a]", firsts)
	}
	mu.Unlock()

	mgr.RemoveSession("s1")
	mu.Lock()
	if len(lasts) != 0 {
		t.Errorf("lasts = %v, want empty while one session remains", lasts)
	}
	mu.Unlock()

	mgr.RemoveSession("s2")
	mu.Lock()
	if len(lasts) != 1 || lasts[0] != "user_a" {
		t.Errorf("lasts = %v, want [user_a]", lasts)
	}
	mu.Unlock()
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	mgr := NewConnManagerWithConf(ManagerConf{SessionTTL: time.Minute, Clock: clock}, "gw-test")
	defer mgr.Close()

	server, _, cleanup := wsPair(t)
	defer cleanup()

	_, _ = mgr.AddAuthed("user_a", "s1", server)
	_ = mgr.JoinUser("s1")

	mgr.sweepOnce(now.Add(30 * time.Second))
	if _, ok := mgr.GetSession("s1"); !ok {
		t.Fatal("session swept too early")
	}

	mgr.sweepOnce(now.Add(2 * time.Minute))
	if _, ok := mgr.GetSession("s1"); ok {
		t.Fatal("expired session not swept")
	}
	if mgr.HasUser("user_a") {
		t.Fatal("user index not cleaned up")
	}
}

func TestHeartbeatExtendsExpiry(t *testing.T) {
	now := time.Now()
	mgr := NewConnManagerWithConf(ManagerConf{SessionTTL: time.Minute, Clock: func() time.Time { return now }}, "gw-test")
	defer mgr.Close()

	server, _, cleanup := wsPair(t)
	defer cleanup()

	_, _ = mgr.AddAuthed("user_a", "s1", server)
	_ = mgr.JoinUser("s1")

	// 心跳续期后，原过期点不会清掉
	now = now.Add(50 * time.Second)
	if err := mgr.Heartbeat("s1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	mgr.sweepOnce(now.Add(30 * time.Second)) // 原 ExpireAt 已过，但已续期
	if _, ok := mgr.GetSession("s1"); !ok {
		t.Fatal("heartbeat did not extend session")
	}
}
