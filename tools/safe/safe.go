package safe

import (
	"fmt"
	"runtime/debug"

	"PChatSync/logger"
)

// Go 启动一个带 recover 的 goroutine，避免回调里的 panic 拖垮整个客户端。
// name 用于日志定位（如 "sync.worker" / "stomp.readPump"）。
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] %s panic recovered: %v\n%s", name, r, debug.Stack())
			}
		}()
		f()
	}()
}

// MustNotNil 初始化期的必填校验。
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
}
