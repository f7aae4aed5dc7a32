package storage

import (
	"sync"

	errs "FProject/tools/errs"
)

// 全局单例
var (
	manager     *PresenceStore
	managerOnce sync.Once
)

// InitManager 初始化全局 Manager，只能调用一次。
// 后续再次调用会返回同一个 Manager。
func InitManager(conf PresenceConfig) (*PresenceStore, error) {
	managerOnce.Do(func() {
		manager = NewPresenceStore(conf)
	})
	if manager == nil {
		return nil, errs.New("presence manager initialization failed")
	}
	return manager, nil
}

// GetManager 获取全局 Manager，如果还没初始化会 panic。
func GetManager() *PresenceStore {
	if manager == nil {
		panic("Presence manager not initialized, call InitManager first")
	}
	return manager
}
