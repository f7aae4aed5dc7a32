package notify

import (
	"context"

	"FProject/logger"
)

// ReadState 已读状态同步器。
// 置已读是幂等的：记录早已读或不存在都按成功处理（不回错给客户端），
// 只有确实发生状态翻转或成功路径才会广播对账事件。
type ReadState struct {
	store NotifyStore
	bus   Publisher
}

func NewReadState(store NotifyStore, bus Publisher) *ReadState {
	return &ReadState{store: store, bus: bus}
}

// MarkRead 把某条通知置为已读，并向该用户广播：
//  1. notificationRead —— 让其它在线端同步 UI
//  2. unreadCount —— 最新未读数
func (r *ReadState) MarkRead(ctx context.Context, userID, notifyID string) error {
	updated, err := r.store.MarkRead(ctx, userID, notifyID)
	if err != nil {
		return err
	}
	if !updated {
		// 已读过/不存在：幂等成功，不再推事件
		return nil
	}

	if raw, merr := MarshalFrame(BuildNotificationRead(notifyID)); merr == nil {
		if perr := r.bus.PublishUser(ctx, userID, raw); perr != nil {
			logger.Warnf("[readstate] publish notificationRead user=%s id=%s err=%v", userID, notifyID, perr)
		}
	}

	count, cerr := r.store.CountUnread(ctx, userID)
	if cerr != nil {
		logger.Warnf("[readstate] count unread user=%s err=%v", userID, cerr)
		return nil
	}
	if raw, merr := MarshalFrame(BuildUnreadCount(count)); merr == nil {
		if perr := r.bus.PublishUser(ctx, userID, raw); perr != nil {
			logger.Warnf("[readstate] publish unread user=%s err=%v", userID, perr)
		}
	}
	return nil
}
