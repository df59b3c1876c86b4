package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"option-desk-go/config"
	"option-desk-go/infrastructure/logger"
	"option-desk-go/internal/settings"
	"option-desk-go/internal/stream"
	"option-desk-go/monitor/logschema"
	"option-desk-go/order"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// settingsWatcherComponent 设置文件被外部修改时广播 settings_changed
type settingsWatcherComponent struct {
	store    *settings.Store
	hub      *stream.Hub
	logger   *logger.Logger
	cooldown time.Duration

	watcher *config.Watcher
}

func (s *settingsWatcherComponent) Start(ctx context.Context) error {
	// 确保文件存在，目录可被监听
	s.store.Load()
	w, err := config.NewWatcher(s.store.Path(), s.cooldown)
	if err != nil {
		return err
	}
	w.OnError(func(err error) {
		s.logger.LogError(err, map[string]interface{}{"component": "settings_watcher"})
	})
	if err := w.Start(ctx, s.onChange); err != nil {
		w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

func (s *settingsWatcherComponent) onChange(path string) {
	cur := s.store.Load()
	fields := map[string]interface{}{"source": "file", "path": path}
	if err := logschema.Validate("settings_changed", fields); err != nil {
		s.logger.Warn("log schema mismatch", zap.Error(err))
	}
	s.logger.LogEvent("settings_changed", fields)
	if s.hub != nil {
		s.hub.Broadcast(stream.TypeSettingsChanged, cur)
	}
}

func (s *settingsWatcherComponent) Stop() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Stop()
	s.watcher = nil
	return err
}

func (s *settingsWatcherComponent) Health() error { return nil }

// reconcilerComponent 包装服务端定时对账
type reconcilerComponent struct {
	reconciler *order.Reconciler
}

func (r *reconcilerComponent) Start(ctx context.Context) error { return r.reconciler.Start(ctx) }
func (r *reconcilerComponent) Stop() error                     { return r.reconciler.Stop() }
func (r *reconcilerComponent) Health() error                   { return nil }

// streamComponent 关闭时断开所有推送连接
type streamComponent struct {
	hub *stream.Hub
}

func (s *streamComponent) Start(ctx context.Context) error { return nil }
func (s *streamComponent) Stop() error {
	s.hub.Close()
	return nil
}
func (s *streamComponent) Health() error { return nil }

// systemdComponent 最后启动：通知 systemd READY，并在启用 watchdog 时定期上报。
type systemdComponent struct {
	logger *logger.Logger
	health func() error
	notify func(state string) (bool, error)

	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func newSystemdComponent(log *logger.Logger, health func() error) *systemdComponent {
	if log == nil {
		log = logger.NewNop()
	}
	return &systemdComponent{
		logger:   log,
		health:   health,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (s *systemdComponent) Start(ctx context.Context) error {
	s.started = true
	sent, err := s.notify(daemon.SdNotifyReady)
	if err != nil {
		s.logger.Warn("sd_notify ready failed", zap.Error(err))
	} else if sent {
		s.logger.Info("notified systemd: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		close(s.doneChan)
		return nil
	}
	go s.watchdogLoop(ctx, interval/2)
	return nil
}

func (s *systemdComponent) watchdogLoop(ctx context.Context, every time.Duration) {
	defer close(s.doneChan)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.health(); err != nil {
				s.logger.Warn("skipping watchdog ping", zap.Error(err))
				continue
			}
			if _, err := s.notify(daemon.SdNotifyWatchdog); err != nil {
				s.logger.Warn("sd_notify watchdog failed", zap.Error(err))
			}
		}
	}
}

func (s *systemdComponent) Stop() error {
	if !s.started {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	if _, err := s.notify(daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("sd_notify stopping: %w", err)
	}
	return nil
}

func (s *systemdComponent) Health() error { return nil }
