package notify

import (
	"context"

	"FProject/logger"
	notifymodel "FProject/module/notify/model"
	safego "FProject/tools/safe"
)

// NotifyStore 通知落库面（生产实现见 module/notify/store）
type NotifyStore interface {
	Insert(ctx context.Context, userID, message, category string) (*notifymodel.Notification, error)
	MarkRead(ctx context.Context, userID, notifyID string) (bool, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Publisher 每用户频道的跨进程投递面（生产实现见 service/storage.PresenceStore）
type Publisher interface {
	PublishUser(ctx context.Context, userID string, payload []byte) error
}

// Firehose 可选的全量外发流（生产实现见 service/kafka）
type Firehose interface {
	PublishCreated(n *notifymodel.Notification) error
}

// Notifier 通知分发器：先落库，再广播。
// 落库失败直接返回错误，不发任何事件；广播失败只记日志
// （记录已持久化，用户重连后靠未读数对账）。
type Notifier struct {
	store NotifyStore
	bus   Publisher
	fh    Firehose // 可为 nil
}

func NewNotifier(store NotifyStore, bus Publisher, fh Firehose) *Notifier {
	return &Notifier{store: store, bus: bus, fh: fh}
}

// Dispatch 分发一条通知给指定用户
func (d *Notifier) Dispatch(ctx context.Context, userID, message, category string) (*notifymodel.Notification, error) {
	n, err := d.store.Insert(ctx, userID, message, category)
	if err != nil {
		return nil, err
	}

	// 广播通知本体
	if raw, merr := MarshalFrame(BuildNotification(n)); merr == nil {
		if perr := d.bus.PublishUser(ctx, userID, raw); perr != nil {
			logger.Warnf("[notifier] publish notification user=%s id=%s err=%v", userID, n.ID, perr)
		}
	} else {
		logger.Warnf("[notifier] marshal notification id=%s err=%v", n.ID, merr)
	}

	// 广播最新未读数
	d.PushUnread(ctx, userID)

	// 全量流（异步、尽力而为）
	if d.fh != nil {
		nn := n
		safego.SafeGo(func() {
			if ferr := d.fh.PublishCreated(nn); ferr != nil {
				logger.Warnf("[notifier] firehose publish id=%s err=%v", nn.ID, ferr)
			}
		})
	}
	return n, nil
}

// PushUnread 重算并广播用户当前未读数
func (d *Notifier) PushUnread(ctx context.Context, userID string) {
	count, err := d.store.CountUnread(ctx, userID)
	if err != nil {
		logger.Warnf("[notifier] count unread user=%s err=%v", userID, err)
		return
	}
	raw, err := MarshalFrame(BuildUnreadCount(count))
	if err != nil {
		logger.Warnf("[notifier] marshal unread user=%s err=%v", userID, err)
		return
	}
	if err := d.bus.PublishUser(ctx, userID, raw); err != nil {
		logger.Warnf("[notifier] publish unread user=%s err=%v", userID, err)
	}
}

// Store 暴露给只读查询面（HTTP API）
func (d *Notifier) Store() NotifyStore { return d.store }
