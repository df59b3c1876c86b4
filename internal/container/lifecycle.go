package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"option-desk-go/infrastructure/logger"

	"go.uber.org/zap"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager 按注册顺序启动，逆序停止。
// running 记录已启动的前缀长度，StopAll 只停这些组件。
type LifecycleManager struct {
	mu         sync.Mutex
	components []namedComponent
	running    int
}

func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 组件名出现在启动和健康检查错误里
func (m *LifecycleManager) Register(name string, c Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: c})
}

// StartAll 某个组件失败时回滚已启动的组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.running < len(m.components) {
		c := m.components[m.running]
		if err := c.Start(ctx); err != nil {
			_ = m.stopRunningLocked()
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		m.running++
	}
	return nil
}

func (m *LifecycleManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopRunningLocked()
}

func (m *LifecycleManager) stopRunningLocked() error {
	var errs []error
	for ; m.running > 0; m.running-- {
		c := m.components[m.running-1]
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 返回第一个不健康的组件
func (m *LifecycleManager) CheckHealth() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.components {
		if err := c.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", c.name, err)
		}
	}
	return nil
}

// httpComponent 主 API 和 metrics 共用。Start 同步绑定端口，端口占用时直接返回错误。
type httpComponent struct {
	name string
	addr string
	srv  *http.Server
	log  *logger.Logger

	mu sync.Mutex
	ln net.Listener
}

func newHTTPComponent(name, addr string, handler http.Handler, log *logger.Logger) *httpComponent {
	return &httpComponent{
		name: name,
		addr: addr,
		srv:  &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		log:  log,
	}
}

func (h *httpComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	h.ln = ln
	h.log.Info("http listening", zap.String("server", h.name), zap.String("addr", ln.Addr().String()))
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.LogError(err, map[string]interface{}{"server": h.name, "action": "serve"})
		}
	}()
	return nil
}

func (h *httpComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		return err
	}
	h.ln = nil
	h.log.Info("http stopped", zap.String("server", h.name))
	return nil
}

func (h *httpComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return errors.New("not listening")
	}
	return nil
}

// Addr 实际监听地址（addr 为 :0 时用于测试）
func (h *httpComponent) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}
