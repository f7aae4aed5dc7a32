package notify

type Handler interface {
	Event() string
	Handle(*NotifyContext, *EventFrame, *WsConn) error
}

type NotifyContext struct {
	S *Server
}
