package notify

import (
	"encoding/json"
	"fmt"
	"time"

	notifymodel "FProject/module/notify/model"
	decode "FProject/tools/decode"
	errs "FProject/tools/errs"
)

// ===== 事件名 =====

// 入站（客户端 -> 服务端）
const (
	EventJoin     = "join"
	EventMarkRead = "markNotificationRead"
	EventTyping   = "typing"
	EventPing     = "ping"
)

// 出站（服务端 -> 客户端）
const (
	EventNotification     = "notification"
	EventUnreadCount      = "unreadCount"
	EventNotificationRead = "notificationRead"
	EventError            = "error"
	EventPong             = "pong"
)

// EventFrame 通知通道上的统一帧结构
type EventFrame struct {
	Event string         `json:"event"`
	Ts    int64          `json:"ts,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func ParseFrameJSON(raw []byte) (*EventFrame, error) {
	f := &EventFrame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Event == "" {
		return nil, errs.New("frame event is empty")
	}
	return f, nil
}

// ===== 入站 payload =====

type JoinPayload struct {
	UserID string `json:"userId"`
}

type MarkReadPayload struct {
	NotificationID string `json:"notificationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func ExtractJoinPayload(f *EventFrame) (*JoinPayload, error) {
	if f == nil || f.Data == nil {
		return nil, errs.New("join payload is nil")
	}
	return decode.DecodeMap[JoinPayload](f.Data)
}

func ExtractMarkReadPayload(f *EventFrame) (*MarkReadPayload, error) {
	if f == nil || f.Data == nil {
		return nil, errs.New("markRead payload is nil")
	}
	return decode.DecodeMap[MarkReadPayload](f.Data)
}

func ExtractTypingPayload(f *EventFrame) (*TypingPayload, error) {
	if f == nil || f.Data == nil {
		return nil, errs.New("typing payload is nil")
	}
	return decode.DecodeMap[TypingPayload](f.Data)
}

// ===== 构造出站帧 =====

func BuildNotification(n *notifymodel.Notification) *EventFrame {
	return &EventFrame{
		Event: EventNotification,
		Ts:    time.Now().UnixMilli(),
		Data: map[string]any{
			"id":        n.ID,
			"userId":    n.UserID,
			"message":   n.Message,
			"category":  n.Category,
			"isRead":    n.IsRead,
			"createdAt": n.CreatedAt.UnixMilli(),
		},
	}
}

func BuildUnreadCount(count int64) *EventFrame {
	return &EventFrame{
		Event: EventUnreadCount,
		Ts:    time.Now().UnixMilli(),
		Data:  map[string]any{"count": count},
	}
}

func BuildNotificationRead(notifyID string) *EventFrame {
	return &EventFrame{
		Event: EventNotificationRead,
		Ts:    time.Now().UnixMilli(),
		Data:  map[string]any{"notificationId": notifyID},
	}
}

func BuildTyping(fromUserID string, p *TypingPayload) *EventFrame {
	return &EventFrame{
		Event: EventTyping,
		Ts:    time.Now().UnixMilli(),
		Data: map[string]any{
			"userId":         fromUserID,
			"conversationId": p.ConversationID,
			"isTyping":       p.IsTyping,
		},
	}
}

func BuildError(e *errs.CodeError) *EventFrame {
	return &EventFrame{
		Event: EventError,
		Ts:    time.Now().UnixMilli(),
		Data:  map[string]any{"code": e.Code, "msg": e.Msg},
	}
}

func BuildPong() *EventFrame {
	return &EventFrame{Event: EventPong, Ts: time.Now().UnixMilli()}
}

// MarshalFrame 出站帧统一序列化入口
func MarshalFrame(f *EventFrame) ([]byte, error) {
	return json.Marshal(f)
}
