package notify

import (
	"context"
	"time"

	"FProject/logger"
	storage "FProject/service/storage"
	redis2 "FProject/service/storage/redis"
	safego "FProject/tools/safe"
)

// ===== 跨进程投递面 =====
//
// 每个节点对用户频道做一次 PSUBSCRIBE；收到消息后只给本地
// 有会话的用户投递。写 socket 交给 worker 池，慢客户端不会
// 卡住 pubsub 读循环。

type fanoutJob struct {
	userID  string
	payload []byte
}

type Fanout struct {
	mgr  *ConnManager
	jobs chan fanoutJob
}

func NewFanout(mgr *ConnManager, workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{mgr: mgr, jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		safego.SafeGo(func() {
			for job := range f.jobs {
				if err := f.mgr.BroadcastUser(job.userID, job.payload); err != nil {
					logger.Infof("[fanout] broadcast user=%s err=%v", job.userID, err)
				}
			}
		})
	}
	return f
}

// Start 订阅用户频道并持续投递；掉线自动重订。ctx 结束后退出。
func (f *Fanout) Start(ctx context.Context) {
	safego.SafeGo(func() {
		for {
			select {
			case <-ctx.Done():
				close(f.jobs)
				return
			default:
			}
			f.runOnce(ctx)

			// 订阅断开，稍等重试
			select {
			case <-ctx.Done():
				close(f.jobs)
				return
			case <-time.After(time.Second):
			}
		}
	})
}

func (f *Fanout) runOnce(ctx context.Context) {
	sub := redis2.GetRedis().PSubscribe(ctx, storage.UserChannelPattern)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				logger.Warnf("[fanout] pubsub channel closed, resubscribing")
				return
			}
			userID := storage.UserFromChannel(msg.Channel)
			if userID == "" {
				continue
			}
			// 本地没有该用户的会话就丢弃（其它节点会投自己的）
			if !f.mgr.HasUser(userID) {
				continue
			}
			select {
			case f.jobs <- fanoutJob{userID: userID, payload: []byte(msg.Payload)}:
			default:
				logger.Warnf("[fanout] job queue full, drop payload user=%s", userID)
			}
		}
	}
}
