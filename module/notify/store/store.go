package store

import (
	"context"
	"time"

	notifymodel "FProject/module/notify/model"
	errs "FProject/tools/errs"
	ids "FProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	NotifyColl *mongo.Collection // notification
}

func NewStore() *Store {
	n := notifymodel.Notification{}
	return &Store{
		NotifyColl: n.Collection(),
	}
}

// Insert 持久化一条通知；_id 由雪花生成，created_at 取服务端时间。
// 返回入库后的完整文档（投递帧以它为准）。
func (s *Store) Insert(ctx context.Context, userID, message, category string) (*notifymodel.Notification, error) {
	doc := &notifymodel.Notification{
		ID:        ids.GenerateString(),
		UserID:    userID,
		Message:   message,
		Category:  notifymodel.ValidCategory(category),
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.NotifyColl.InsertOne(ctx, doc); err != nil {
		e := errs.ErrStoreFailed.WithDetail(err.Error())
		return nil, &e
	}
	return doc, nil
}

// MarkRead 幂等置已读：
// updated=true 表示本次从未读翻到已读；false 表示早已读或记录不存在。
func (s *Store) MarkRead(ctx context.Context, userID, notifyID string) (bool, error) {
	n := notifymodel.Notification{}
	return n.MarkRead(ctx, userID, notifyID)
}

// CountUnread 当前未读数
func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	n := notifymodel.Notification{}
	return n.CountUnread(ctx, userID)
}

// ListByUser 按创建时间倒序分页；page 从 1 开始
func (s *Store) ListByUser(ctx context.Context, userID string, page, size int64) ([]*notifymodel.Notification, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip((page - 1) * size).
		SetLimit(size)

	cur, err := s.NotifyColl.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*notifymodel.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureIndexes 建立查询索引（user_id+is_read、user_id+created_at）
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.NotifyColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}
