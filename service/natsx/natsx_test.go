package natsx

import (
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/context"
)

func testNatsServers(t *testing.T) []string {
	t.Helper()
	v := os.Getenv("NATS_SERVERS")
	if v == "" {
		t.Skip("NATS_SERVERS not set, skip nats integration test")
	}
	return strings.Split(v, ",")
}

// Core 模式：发布→队列订阅→收到，Nats-Msg-Id 透传
func TestCorePublishRoundtrip(t *testing.T) {
	servers := testNatsServers(t)

	mgr, err := NewNatsManager(NatsxConfig{Servers: servers, Name: "natsx-test"})
	if err != nil {
		t.Fatalf("NewNatsManager: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	route := NatsxRoute{
		Biz:     "natsx_test_core",
		Subject: "natsx.test.core",
		Mode:    Core,
		Queue:   "natsx-test",
	}
	if err := mgr.RegisterRoute(route); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}

	got := make(chan NatsxMessage, 1)
	if err := mgr.Subscribe("natsx_test_core", func(ctx context.Context, msg NatsxMessage) error {
		got <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := mgr.PublishOnce(context.Background(), "natsx_test_core",
		[]byte(`{"userId":"user_10001","message":"hi"}`), nil, "roundtrip-1"); err != nil {
		t.Fatalf("PublishOnce: %v", err)
	}

	select {
	case msg := <-got:
		if !strings.Contains(string(msg.Data), "user_10001") {
			t.Errorf("payload = %s", msg.Data)
		}
		if id := msg.Header["Nats-Msg-Id"]; id != "roundtrip-1" {
			t.Errorf("Nats-Msg-Id = %q, want roundtrip-1", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}

// 全局门面：启动前注册路由/handler 走 pending 缓冲，StartNats 后一次性生效
func TestGlobalFacadePublish(t *testing.T) {
	servers := testNatsServers(t)

	if err := RegisterRoute(NatsxRoute{
		Biz:     "natsx_test_global",
		Subject: "natsx.test.global",
		Mode:    Core,
	}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}
	got := make(chan NatsxMessage, 1)
	if err := RegisterHandler("natsx_test_global", func(ctx context.Context, msg NatsxMessage) error {
		got <- msg
		return nil
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := StartNats(NatsxConfig{Servers: servers, Name: "natsx-test-global"}); err != nil {
		t.Fatalf("StartNats: %v", err)
	}
	defer func() { _ = StopNats() }()

	if err := Publish(context.Background(), "natsx_test_global",
		[]byte("hello"), map[string]string{"X-Msg-Id": "g1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-got:
		if string(msg.Data) != "hello" {
			t.Errorf("payload = %s", msg.Data)
		}
		if msg.Header["X-Msg-Id"] != "g1" {
			t.Errorf("header = %v", msg.Header)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}
