package handlers

import (
	notify "FProject/service/notify"
)

// PingHandler 应用层心跳：续期本地 TTL 并回 pong
type PingHandler struct{}

func NewPingHandler() notify.Handler { return &PingHandler{} }

func (h *PingHandler) Event() string { return notify.EventPing }

func (h *PingHandler) Handle(ctx *notify.NotifyContext, f *notify.EventFrame, conn *notify.WsConn) error {
	_ = ctx.S.ConnMgr().Heartbeat(conn.SessionID)
	return ctx.S.SendFrame(conn.SessionID, notify.BuildPong())
}
