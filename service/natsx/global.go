package natsx

import (
	"context"
	"errors"
	"sync"

	"FProject/logger"
)

var (
	globalMgr *NatsManager
	startOnce sync.Once

	mu               sync.Mutex
	pendingRoutes    = make(map[string]NatsxRoute)     // 启动前缓存的路由
	pendingHandlers  = make(map[string][]NatsxHandler) // 启动前缓存的订阅回调
	registeredBizSet = make(map[string]struct{})       // 已注册的 Biz（幂等）
	defaultMws       []NatsxMiddleware                 // 全局中间件
)

// UseGlobalMiddlewares 启动前配置全局中间件（例如幂等）
func UseGlobalMiddlewares(mws ...NatsxMiddleware) {
	mu.Lock()
	defer mu.Unlock()
	defaultMws = append(defaultMws, mws...)
}

// StartNats 启动全局 NATS（只会执行一次）。
// 会把启动前通过 RegisterRoute / RegisterHandler 缓存的内容一次性应用。
func StartNats(cfg NatsxConfig) error {
	var startErr error
	startOnce.Do(func() {
		mu.Lock()
		mws := append([]NatsxMiddleware(nil), defaultMws...)
		mu.Unlock()

		mgr, err := NewNatsManager(cfg, mws...)
		if err != nil {
			startErr = err
			return
		}

		mu.Lock()
		defer mu.Unlock()
		globalMgr = mgr

		// 1) 先注册所有路由
		for biz, r := range pendingRoutes {
			if err := globalMgr.RegisterRoute(r); err != nil {
				logger.Errorf("register route failed (biz=%s): %v", biz, err)
				continue
			}
			registeredBizSet[biz] = struct{}{}
		}

		// 2) 再订阅所有 handler
		for biz, hs := range pendingHandlers {
			for _, h := range hs {
				if err := globalMgr.Subscribe(biz, h); err != nil {
					logger.Errorf("subscribe failed (biz=%s): %v", biz, err)
				}
			}
		}

		pendingRoutes = make(map[string]NatsxRoute)
		pendingHandlers = make(map[string][]NatsxHandler)
		logger.Info("nats manager started, pending routes/handlers applied")
	})
	return startErr
}

// StopNats 优雅关闭（可选）
func StopNats() error {
	mu.Lock()
	defer mu.Unlock()
	if globalMgr == nil {
		return nil
	}
	err := globalMgr.Close()
	globalMgr = nil
	return err
}

// GetNatsManager 获取全局单例（未启动时返回错误）
func GetNatsManager() (*NatsManager, error) {
	if globalMgr == nil {
		return nil, errors.New("NatsManager not started: call StartNats() first")
	}
	return globalMgr, nil
}

// ---------- 对外暴露的全局操作（可在启动前/后调用） ----------

// RegisterRoute 全局注册路由；同 Biz 重复注册直接跳过
func RegisterRoute(r NatsxRoute) error {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := registeredBizSet[r.Biz]; ok {
		return nil
	}
	if globalMgr == nil {
		pendingRoutes[r.Biz] = r
		registeredBizSet[r.Biz] = struct{}{}
		return nil
	}
	if err := globalMgr.RegisterRoute(r); err != nil {
		return err
	}
	registeredBizSet[r.Biz] = struct{}{}
	return nil
}

// RegisterHandler 为某个 Biz 注册订阅处理器
func RegisterHandler(biz string, h NatsxHandler) error {
	mu.Lock()
	defer mu.Unlock()

	if globalMgr == nil {
		pendingHandlers[biz] = append(pendingHandlers[biz], h)
		return nil
	}
	return globalMgr.Subscribe(biz, h)
}

// Publish 对外发布消息（需要已启动）
func Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	mu.Lock()
	m := globalMgr
	mu.Unlock()
	if m == nil {
		return errors.New("NatsManager not started")
	}
	return m.Publish(ctx, biz, data, hdr)
}

// PublishOnce 对外发布消息（带 Nats-Msg-Id 去重）
func PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	mu.Lock()
	m := globalMgr
	mu.Unlock()
	if m == nil {
		return errors.New("NatsManager not started")
	}
	return m.PublishOnce(ctx, biz, data, hdr, msgID)
}
