package handlers

import (
	"context"
	"time"

	"FProject/logger"
	notify "FProject/service/notify"
	errs "FProject/tools/errs"
)

// JoinHandler 入房：校验 join 的 userId 与鉴权身份一致，
// 登记共享在线索引，并单推一次当前未读数。
type JoinHandler struct{}

func NewJoinHandler() notify.Handler { return &JoinHandler{} }

func (h *JoinHandler) Event() string { return notify.EventJoin }

func (h *JoinHandler) Handle(ctx *notify.NotifyContext, f *notify.EventFrame, conn *notify.WsConn) error {
	s := ctx.S

	p, err := notify.ExtractJoinPayload(f)
	if err != nil || p.UserID == "" {
		logger.Infof("[join] bad payload session=%s err=%v", conn.SessionID, err)
		_ = s.SendFrame(conn.SessionID, notify.BuildError(&errs.ErrJoinMismatch))
		s.Kick(conn.SessionID)
		return nil
	}

	// 只能进自己的房；不符视为协议违例，直接断开
	if p.UserID != conn.UserID {
		logger.Warnf("[join] identity mismatch auth=%s requested=%s session=%s",
			conn.UserID, p.UserID, conn.SessionID)
		_ = s.SendFrame(conn.SessionID, notify.BuildError(&errs.ErrJoinMismatch))
		s.Kick(conn.SessionID)
		return nil
	}

	if jerr := s.ConnMgr().JoinUser(conn.SessionID); jerr != nil {
		logger.Warnf("[join] local join user=%s session=%s err=%v", conn.UserID, conn.SessionID, jerr)
		s.Kick(conn.SessionID)
		return nil
	}

	// 共享在线索引（跨进程 IsOnline 查询面）
	cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	rerr := s.Presence().Register(cctx, conn.UserID, conn.SessionID)
	cancel()
	if rerr != nil && !rerr.Is(&errs.ErrRecordIsExist) {
		logger.Warnf("[join] presence register user=%s session=%s err=%v", conn.UserID, conn.SessionID, rerr)
	}

	// 入房即对账：只推给当前这条连接
	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()
	count, cerr := s.Notifier().Store().CountUnread(qctx, conn.UserID)
	if cerr != nil {
		logger.Warnf("[join] count unread user=%s err=%v", conn.UserID, cerr)
		return nil
	}
	if serr := s.SendFrame(conn.SessionID, notify.BuildUnreadCount(count)); serr != nil {
		logger.Infof("[join] push unread user=%s session=%s err=%v", conn.UserID, conn.SessionID, serr)
	}
	return nil
}
