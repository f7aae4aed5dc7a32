package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	notifymodel "FProject/module/notify/model"
)

// ===== 测试替身 =====

type fakeStore struct {
	mu        sync.Mutex
	insertErr error
	markErr   error
	unread    int64
	inserted  []*notifymodel.Notification
	marked    map[string]bool // notifyID -> isRead
}

func newFakeStore() *fakeStore {
	return &fakeStore{marked: make(map[string]bool)}
}

func (s *fakeStore) Insert(_ context.Context, userID, message, category string) (*notifymodel.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
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

func (s *fakeStore) MarkRead(_ context.Context, _, notifyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	exists := false
	for _, n := range s.inserted {
		if n.ID == notifyID {
			exists = true
			break
		}
	}
	if !exists || s.marked[notifyID] {
		return false, nil
	}
	s.marked[notifyID] = true
	if s.unread > 0 {
		s.unread--
	}
	return true, nil
}

func (s *fakeStore) CountUnread(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread, nil
}

type fakeBus struct {
	mu       sync.Mutex
	err      error
	payloads []publishedFrame
}

type publishedFrame struct {
	userID string
	frame  EventFrame
}

func (b *fakeBus) PublishUser(_ context.Context, userID string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	var f EventFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	b.payloads = append(b.payloads, publishedFrame{userID: userID, frame: f})
	return nil
}

func (b *fakeBus) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.payloads))
	for _, p := range b.payloads {
		out = append(out, p.frame.Event)
	}
	return out
}

// ===== 用例 =====

func TestDispatchPersistsThenBroadcasts(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	d := NewNotifier(store, bus, nil)

	n, err := d.Dispatch(context.Background(), "user_10001", "membership renewed", "success")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if n == nil || n.UserID != "user_10001" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	events := bus.events()
	if len(events) != 2 {
		t.Fatalf("published %d frames, want 2: %v", len(events), events)
	}
	if events[0] != EventNotification || events[1] != EventUnreadCount {
		t.Errorf("frame order = %v, want [notification unreadCount]", events)
	}
	if got := bus.payloads[1].frame.Data["count"].(float64); got != 1 {
		t.Errorf("unread count = %v, want 1", got)
	}
	for _, p := range bus.payloads {
		if p.userID != "user_10001" {
			t.Errorf("published to %q, want user_10001", p.userID)
		}
	}
}

func TestDispatchStoreFailureSuppressesBroadcast(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("mongo down")
	bus := &fakeBus{}
	d := NewNotifier(store, bus, nil)

	if _, err := d.Dispatch(context.Background(), "user_10001", "hello", "info"); err == nil {
		t.Fatal("expected error when store insert fails")
	}
	if len(bus.events()) != 0 {
		t.Errorf("expected no frames published, got %v", bus.events())
	}
}

func TestDispatchBusFailureStillReturnsNotification(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{err: errors.New("redis down")}
	d := NewNotifier(store, bus, nil)

	n, err := d.Dispatch(context.Background(), "user_10001", "hello", "info")
	if err != nil {
		t.Fatalf("Dispatch should tolerate bus failure: %v", err)
	}
	if n == nil {
		t.Fatal("expected persisted notification back")
	}
	if len(store.inserted) != 1 {
		t.Errorf("inserted = %d, want 1", len(store.inserted))
	}
}

func TestDispatchInvalidCategoryFallsBack(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	d := NewNotifier(store, bus, nil)

	n, err := d.Dispatch(context.Background(), "user_10001", "hello", "shiny")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if n.Category != notifymodel.CategoryInfo {
		t.Errorf("category = %q, want info", n.Category)
	}
}

func TestUnreadCountAcrossDispatchAndMarkRead(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	d := NewNotifier(store, bus, nil)
	rs := NewReadState(store, bus)

	ctx := context.Background()
	var last *notifymodel.Notification
	for _, msg := range []string{"a", "b", "c"} {
		n, err := d.Dispatch(ctx, "user_10001", msg, "info")
		if err != nil {
			t.Fatalf("Dispatch %s: %v", msg, err)
		}
		last = n
	}
	if got, _ := store.CountUnread(ctx, "user_10001"); got != 3 {
		t.Fatalf("unread = %d, want 3", got)
	}

	if err := rs.MarkRead(ctx, "user_10001", last.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got, _ := store.CountUnread(ctx, "user_10001"); got != 2 {
		t.Errorf("unread after markRead = %d, want 2", got)
	}
}
