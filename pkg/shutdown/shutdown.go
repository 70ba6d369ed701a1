package shutdown

import (
	"context"
	"sync"

	"github.com/cryptolocker/nftwallet/pkg/logger"
)

// Handler 关闭处理函数，应在 ctx 结束前返回
type Handler func(ctx context.Context)

// Manager 优雅关闭管理器
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
}

type namedHandler struct {
	name string
	fn   Handler
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 并发执行所有关闭回调（阻塞调用）
// ctx 应该是一个带超时的 context，避免无限等待；返回 false 表示超时
func (m *Manager) Shutdown(ctx context.Context) bool {
	m.mu.Lock()
	callbacks := append([]namedHandler(nil), m.callbacks...)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("没有注册的关闭回调")
		return true
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h namedHandler) {
			defer wg.Done()
			h.fn(ctx)
			logger.Debugf("关闭回调完成: %s", h.name)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("所有关闭回调已完成")
		return true
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		return false
	}
}
