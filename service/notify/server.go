package notify

import (
	"context"
	"time"

	errs "FProject/tools/errs"
	security "FProject/tools/security"
)

// Presence 共享在线索引 + 每用户频道（生产实现见 service/storage.PresenceStore）
type Presence interface {
	Publisher
	Register(ctx context.Context, userID, sessionID string) *errs.CodeError
	Offline(ctx context.Context, userID, sessionID string) (bool, error)
	Heartbeat(ctx context.Context, userID, sessionID string) (bool, error)
}

// ===== 网关服务 =====

type ServerConf struct {
	NodeID    string
	Jwt       security.Options
	PingEvery time.Duration // 服务端主动 ping 周期
	Manager   ManagerConf
}

func (c *ServerConf) norm() {
	if c.PingEvery <= 0 {
		c.PingEvery = 25 * time.Second
	}
}

// Server 通知网关：握手鉴权、事件路由、入房与投递的聚合根
type Server struct {
	conf ServerConf

	mgr       *ConnManager
	disp      *Dispatcher
	notifier  *Notifier
	readState *ReadState
	presence  Presence
}

func NewServer(conf ServerConf, notifier *Notifier, readState *ReadState, presence Presence) *Server {
	conf.norm()
	s := &Server{
		conf:      conf,
		mgr:       NewConnManagerWithConf(conf.Manager, conf.NodeID),
		disp:      NewDispatcher(),
		notifier:  notifier,
		readState: readState,
		presence:  presence,
	}
	return s
}

func (s *Server) ConnMgr() *ConnManager { return s.mgr }
func (s *Server) Disp() *Dispatcher     { return s.disp }
func (s *Server) Notifier() *Notifier   { return s.notifier }
func (s *Server) ReadState() *ReadState { return s.readState }
func (s *Server) Presence() Presence    { return s.presence }
func (s *Server) Conf() ServerConf      { return s.conf }

// SendFrame 给单条会话发一帧（序列化失败只记日志）
func (s *Server) SendFrame(sessionID string, f *EventFrame) error {
	raw, err := MarshalFrame(f)
	if err != nil {
		return err
	}
	return s.mgr.SendOne(sessionID, raw)
}

// Kick 主动断开一条会话（协议违例用）
func (s *Server) Kick(sessionID string) {
	s.mgr.RemoveSession(sessionID)
}

func (s *Server) Close() {
	s.mgr.Close()
}
