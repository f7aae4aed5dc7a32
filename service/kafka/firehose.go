package kafka

import (
	"encoding/json"

	notifymodel "FProject/module/notify/model"
)

// NotifyFirehose 把每条新建通知旁路进 Kafka，
// 供离线统计/审计类消费者使用；主投递链路不依赖它。
type NotifyFirehose struct {
	topic string
}

func NewNotifyFirehose(topic string) *NotifyFirehose {
	if topic == "" {
		topic = Cfg.Topic
	}
	return &NotifyFirehose{topic: topic}
}

func (f *NotifyFirehose) PublishCreated(n *notifymodel.Notification) error {
	raw, err := json.Marshal(map[string]any{
		"id":        n.ID,
		"userId":    n.UserID,
		"message":   n.Message,
		"category":  n.Category,
		"createdAt": n.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return SendSync(f.topic, n.UserID, raw)
}
