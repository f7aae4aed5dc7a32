package handlers

import (
	"context"
	"time"

	"FProject/logger"
	notify "FProject/service/notify"
)

// TypingHandler 输入中状态（聊天面搭车通知通道）：
// 不落库，直接转发到会话对端的用户频道。
type TypingHandler struct{}

func NewTypingHandler() notify.Handler { return &TypingHandler{} }

func (h *TypingHandler) Event() string { return notify.EventTyping }

func (h *TypingHandler) Handle(ctx *notify.NotifyContext, f *notify.EventFrame, conn *notify.WsConn) error {
	if !conn.Joined {
		return nil
	}
	p, err := notify.ExtractTypingPayload(f)
	if err != nil || p.ConversationID == "" {
		logger.Infof("[typing] bad payload session=%s err=%v", conn.SessionID, err)
		return nil
	}

	raw, merr := notify.MarshalFrame(notify.BuildTyping(conn.UserID, p))
	if merr != nil {
		return merr
	}
	// 会话ID即对端用户ID（单聊直连约定）
	cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if perr := ctx.S.Presence().PublishUser(cctx, p.ConversationID, raw); perr != nil {
		logger.Infof("[typing] publish conv=%s err=%v", p.ConversationID, perr)
	}
	return nil
}
