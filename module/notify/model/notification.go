package model

import (
	"context"
	"time"

	"FProject/data/database"
	"FProject/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ database.Table = (*Notification)(nil)

// 通知类别（影响客户端样式渲染）
const (
	CategorySuccess = "success"
	CategoryError   = "error"
	CategoryInfo    = "info"
)

// ValidCategory 非法类别回落到 info
func ValidCategory(c string) string {
	switch c {
	case CategorySuccess, CategoryError, CategoryInfo:
		return c
	default:
		return CategoryInfo
	}
}

// Notification 表示一条已入库的用户通知
type Notification struct {
	ID        string    `bson:"_id"`        // 雪花ID（字符串形式）
	UserID    string    `bson:"user_id"`    // 目标用户ID
	Message   string    `bson:"message"`    // 展示文案
	Category  string    `bson:"category"`   // success / error / info
	IsRead    bool      `bson:"is_read"`    // 已读标记（只会 false -> true）
	CreatedAt time.Time `bson:"created_at"` // 入库时间
}

func (n *Notification) GetTableName() string {
	return "notification"
}

func (n *Notification) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(n.GetTableName())
}

// MarkRead 置已读（幂等：重复标记不报错，不产生第二次修改）
func (n *Notification) MarkRead(ctx context.Context, userID, notifyID string) (updated bool, err error) {
	filter := bson.M{
		"_id":     notifyID,
		"user_id": userID, // 只允许本人标记
		"is_read": false,
	}
	update := bson.M{
		"$set": bson.M{"is_read": true},
	}
	res, err := n.Collection().UpdateOne(ctx, filter, update, options.Update())
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// CountUnread 未读数量
func (n *Notification) CountUnread(ctx context.Context, userID string) (int64, error) {
	return n.Collection().CountDocuments(ctx, bson.M{
		"user_id": userID,
		"is_read": false,
	})
}
