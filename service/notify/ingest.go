package notify

import (
	"encoding/json"

	"FProject/logger"
	natsx "FProject/service/natsx"
	errs "FProject/tools/errs"

	"golang.org/x/net/context"
)

// ===== NATS 入口 =====
//
// 平台侧业务服务（订单、排课、支付回调……）不直接依赖本进程，
// 往 notify.dispatch 丢一条 JSON 就行；队列组保证多网关只处理一次。

const (
	BizDispatch     = "notify_dispatch"
	SubjectDispatch = "notify.dispatch"
	QueueDispatch   = "notify-gateway"
)

// DispatchRequest 入口消息体
type DispatchRequest struct {
	UserID   string `json:"userId"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// DispatchRoute 入口路由（给 natsx.RegisterRoute 用）
func DispatchRoute() natsx.NatsxRoute {
	return natsx.NatsxRoute{
		Biz:     BizDispatch,
		Subject: SubjectDispatch,
		Mode:    natsx.Core,
		Queue:   QueueDispatch,
	}
}

// RegisterDispatchIngress 订阅入口 subject，把消息转给分发器
func RegisterDispatchIngress(notifier *Notifier) error {
	if err := natsx.RegisterRoute(DispatchRoute()); err != nil {
		return err
	}
	return natsx.RegisterHandler(BizDispatch, func(ctx context.Context, msg natsx.NatsxMessage) error {
		var req DispatchRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Warnf("[ingest] bad payload subject=%s err=%v", msg.Subject, err)
			return nil // 毒消息不重试
		}
		if req.UserID == "" || req.Message == "" {
			logger.Warnf("[ingest] missing userId/message subject=%s", msg.Subject)
			return nil
		}
		if _, err := notifier.Dispatch(ctx, req.UserID, req.Message, req.Category); err != nil {
			// 落库失败让 broker 侧重投（JS 模式下 NACK）
			return errs.ErrStoreFailed.WrapMsg("dispatch via nats", "user", req.UserID, "err", err.Error())
		}
		return nil
	})
}
