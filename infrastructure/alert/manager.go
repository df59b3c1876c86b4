package alert

import (
	"fmt"
	"sync"
	"time"
)

const (
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Alert 一条需要人工关注的告警
type Alert struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Channel 告警出口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 同一 key 在 interval 内只放行一次
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{interval: interval, last: make(map[string]time.Time), now: time.Now}
}

// Allow 放行时记录时间
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if prev, seen := t.last[key]; seen && now.Sub(prev) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}

// Manager 按 level+message 限流后扇出到全部通道
type Manager struct {
	channels []Channel
	throttle *Throttler
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{channels: channels, throttle: NewThrottler(throttleInterval)}
}

// SendWarning 例如 pending 单超时、订单簿查询失败
func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.send(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

// SendError 例如券商拒单
func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.send(Alert{Level: LevelError, Message: message, Fields: fields})
}

// send 被限流时静默返回 nil；只有全部通道失败才返回错误
func (m *Manager) send(a Alert) error {
	if !m.throttle.Allow(a.Level + ":" + a.Message) {
		return nil
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	var lastErr error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s: %w", ch.Name(), err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return lastErr
	}
	return nil
}
