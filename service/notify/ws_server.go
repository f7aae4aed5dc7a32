package notify

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"FProject/logger"
	errs "FProject/tools/errs"
	ids "FProject/tools/ids"
	security "FProject/tools/security"
	safego "FProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// extractToken 取握手凭证：cookie access_token 优先，其次 Authorization: Bearer
func extractToken(r *http.Request) string {
	if ck, err := r.Cookie("access_token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	if ah := r.Header.Get("Authorization"); ah != "" {
		if strings.HasPrefix(ah, "Bearer ") {
			return strings.TrimSpace(ah[len("Bearer "):])
		}
	}
	// 浏览器 WebSocket 无法自定义 header 时的兜底
	return r.URL.Query().Get("access_token")
}

// HandleWS ===== WebSocket 接入 =====
// 鉴权在升级前完成：没有可用凭证的请求拿到 401，不会进入事件处理。
func (s *Server) HandleWS(c *gin.Context) {
	token := extractToken(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenMissing)
		return
	}
	userID, err := security.VerifySubject(s.conf.Jwt, token)
	if err != nil {
		e := errs.ErrTokenInvalid.WithDetail(err.Error())
		c.JSON(http.StatusUnauthorized, e)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	ws.SetReadLimit(64 * 1024) // 事件帧都很小，超限按恶意处理

	sessionID := ids.GenerateString()
	rec, aerr := s.mgr.AddAuthed(userID, sessionID, ws)
	if aerr != nil {
		logger.Warnf("[HandleWS] add session user=%s err=%v", userID, aerr)
		_ = ws.Close()
		return
	}
	s.mgr.AttachPongHandler(ws, sessionID)
	logger.Infof("[HandleWS] session up user=%s session=%s remote=%v", userID, sessionID, rec.Remote)

	done := make(chan struct{})
	s.startPinger(rec, done)

	// ---- 读循环：只读，不写；出错即退出 ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed session=%s err=%v", sessionID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout session=%s err=%v", sessionID, rerr)
			} else {
				logger.Infof("[WS] read err session=%s err=%v", sessionID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseFrameJSON(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] ParseFrameJSON err session=%s err=%v sample=%q len=%d",
				sessionID, perr, sample, len(data))
			continue
		}

		h := s.disp.GetHandler(f.Event)
		if h == nil {
			continue
		}
		if herr := h.Handle(&NotifyContext{S: s}, f, rec); herr != nil {
			logger.Infof("[WS] handler event=%s session=%s err=%v", f.Event, sessionID, herr)
			continue
		}

		// 会话被 handler 踢掉（join 身份不符）就直接收尾
		if _, ok := s.mgr.GetSession(sessionID); !ok {
			break
		}
	}
	close(done)

	// ---- 退出阶段：共享在线索引下线 + 本地索引清理 ----
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rec.Joined {
			if _, oerr := s.presence.Offline(ctx, userID, sessionID); oerr != nil {
				logger.Infof("[WS] presence offline user=%s session=%s err=%v", userID, sessionID, oerr)
			}
		}
	}
	s.mgr.RemoveSession(sessionID)
	logger.Infof("[HandleWS] session down user=%s session=%s", userID, sessionID)
}

// startPinger 周期性 ping；pong 续期本地 TTL，入房后的会话顺带续期共享索引
func (s *Server) startPinger(rec *WsConn, done <-chan struct{}) {
	safego.SafeGo(func() {
		t := time.NewTicker(s.conf.PingEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := rec.WriteControl(websocket.PingMessage, nil, 5); err != nil {
					return
				}
				if s.mgr.IsJoined(rec.SessionID) {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					alive, herr := s.presence.Heartbeat(ctx, rec.UserID, rec.SessionID)
					cancel()
					if herr == nil && !alive {
						logger.Infof("[pinger] presence session gone user=%s session=%s", rec.UserID, rec.SessionID)
					}
				}
			}
		}
	})
}
