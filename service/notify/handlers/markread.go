package handlers

import (
	"context"
	"time"

	"FProject/logger"
	notify "FProject/service/notify"
)

// MarkReadHandler 已读上报：要求会话已 join；
// 同步失败不回错给客户端（记录还在，重连对账兜底）。
type MarkReadHandler struct{}

func NewMarkReadHandler() notify.Handler { return &MarkReadHandler{} }

func (h *MarkReadHandler) Event() string { return notify.EventMarkRead }

func (h *MarkReadHandler) Handle(ctx *notify.NotifyContext, f *notify.EventFrame, conn *notify.WsConn) error {
	if !conn.Joined {
		logger.Infof("[markRead] session not joined session=%s", conn.SessionID)
		return nil
	}

	p, err := notify.ExtractMarkReadPayload(f)
	if err != nil || p.NotificationID == "" {
		logger.Infof("[markRead] bad payload session=%s err=%v", conn.SessionID, err)
		return nil
	}

	cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if merr := ctx.S.ReadState().MarkRead(cctx, conn.UserID, p.NotificationID); merr != nil {
		logger.Warnf("[markRead] user=%s id=%s err=%v", conn.UserID, p.NotificationID, merr)
	}
	return nil
}
