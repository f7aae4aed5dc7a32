package safe

import (
	"FProject/logger"
)

// SafeGo 启动一个会捕获 panic 的 goroutine，
// 推送类的 fire-and-forget 调用统一走这里，单个连接异常不拖垮进程。
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
