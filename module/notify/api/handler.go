package api

import (
	"net/http"

	"FProject/logger"
	midsec "FProject/middleware/security"
	notifystore "FProject/module/notify/store"
	notifysrv "FProject/service/notify"
	errs "FProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// ===== HTTP 查询/注入面 =====
//
// WebSocket 是投递面；这里是业务服务的注入入口和
// 客户端冷启动时的历史查询面。

type NotifyAPI struct {
	store    *notifystore.Store
	notifier *notifysrv.Notifier
}

func NewNotifyAPI(store *notifystore.Store, notifier *notifysrv.Notifier) *NotifyAPI {
	return &NotifyAPI{store: store, notifier: notifier}
}

type dispatchReq struct {
	UserID   string `json:"userId" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Category string `json:"category"`
}

// Dispatch POST /api/notify/dispatch —— 内部服务注入一条通知
func (a *NotifyAPI) Dispatch(c *gin.Context) {
	var req dispatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.New("invalid dispatch body", "err", err.Error()))
		return
	}
	n, err := a.notifier.Dispatch(c.Request.Context(), req.UserID, req.Message, req.Category)
	if err != nil {
		logger.Errorf("[api] dispatch user=%s err=%v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, errs.ErrStoreFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"id": n.ID}})
}

// List GET /api/notify/list?page=1&size=50 —— 当前用户的通知分页
func (a *NotifyAPI) List(c *gin.Context) {
	userID := midsec.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
		return
	}
	page := int64Query(c, "page", 1)
	size := int64Query(c, "size", 50)

	items, err := a.store.ListByUser(c.Request.Context(), userID, page, size)
	if err != nil {
		logger.Errorf("[api] list user=%s err=%v", userID, err)
		c.JSON(http.StatusInternalServerError, errs.ErrStoreFailed)
		return
	}
	out := make([]gin.H, 0, len(items))
	for _, n := range items {
		out = append(out, gin.H{
			"id":        n.ID,
			"message":   n.Message,
			"category":  n.Category,
			"isRead":    n.IsRead,
			"createdAt": n.CreatedAt.UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": out})
}

// Unread GET /api/notify/unread —— 当前用户未读数
func (a *NotifyAPI) Unread(c *gin.Context) {
	userID := midsec.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
		return
	}
	count, err := a.store.CountUnread(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("[api] unread user=%s err=%v", userID, err)
		c.JSON(http.StatusInternalServerError, errs.ErrStoreFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"count": count}})
}

// Health GET /health
func (a *NotifyAPI) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func int64Query(c *gin.Context, key string, def int64) int64 {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var n int64
	for _, ch := range v {
		if ch < '0' || ch > '9' {
			return def
		}
		n = n*10 + int64(ch-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
