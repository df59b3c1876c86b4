package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"option-desk-go/config"
	"option-desk-go/gateway"
	"option-desk-go/infrastructure/alert"
	"option-desk-go/infrastructure/logger"
	"option-desk-go/infrastructure/monitor"
	"option-desk-go/internal/server"
	"option-desk-go/internal/settings"
	"option-desk-go/internal/store"
	"option-desk-go/internal/stream"
	"option-desk-go/order"

	"go.uber.org/zap"
)

// settingsWatchCooldown 合并编辑器连续写入触发的多次事件
const settingsWatchCooldown = 200 * time.Millisecond

// Container 依赖注入容器，负责装配下单台的各个组件
type Container struct {
	cfg config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 券商
	client *gateway.OpenAlgoClient

	// 核心服务
	settings   *settings.Store
	archive    *store.SQLiteArchive
	ledger     *order.Ledger
	orders     *order.Manager
	reconciler *order.Reconciler
	hub        *stream.Hub
	server     *server.Server

	// 生命周期
	lifecycle *LifecycleManager
	http      *httpComponent
	metrics   *httpComponent

	mu      sync.Mutex
	started bool
}

// New 从配置文件创建容器，envFiles 为可选的 .env 文件
func New(configPath string, envFiles ...string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig 使用已加载的配置创建容器
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	c.buildGateway()
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	c.registerLifecycleComponents()

	c.logger.Info("container built",
		zap.String("env", c.cfg.Env),
		zap.String("broker", c.cfg.Gateway.BaseURL),
		zap.String("ledger", c.cfg.Ledger.Path),
		zap.String("settings", c.cfg.Settings.Path),
	)
	return nil
}

func (c *Container) buildInfrastructure() error {
	log, err := logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = log
	c.monitor = monitor.New(monitor.DefaultConfig())

	channels := []alert.Channel{alert.NewLogChannel("log", log)}
	if c.cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", c.cfg.Alert.WebhookURL, 5*time.Second))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alert.Throttle())
	return nil
}

func (c *Container) buildGateway() {
	c.client = &gateway.OpenAlgoClient{
		BaseURL:    c.cfg.Gateway.BaseURL,
		APIKey:     c.cfg.Gateway.APIKey,
		HTTPClient: gateway.NewDefaultHTTPClient(c.cfg.Gateway.Timeout()),
		Observer:   c.monitor,
	}
	if c.cfg.Gateway.Rate > 0 {
		c.client.Limiter = gateway.NewTokenBucketLimiter(c.cfg.Gateway.Rate, c.cfg.Gateway.Burst)
	}
	if c.cfg.Gateway.APIKey == "" {
		c.logger.Warn("OPENALGO_API_KEY is empty, broker calls will be rejected")
	}
}

func (c *Container) buildCoreServices() error {
	loc, err := c.cfg.Ledger.Location()
	if err != nil {
		return fmt.Errorf("ledger timezone: %w", err)
	}

	c.hub = stream.NewHub(c.logger)
	c.hub.SetObserver(c.monitor)

	c.settings = settings.NewStore(c.cfg.Settings.Path, c.logger)
	c.settings.OnChange(func(cur settings.Settings) {
		c.hub.Broadcast(stream.TypeSettingsChanged, cur)
	})

	if c.cfg.Ledger.ArchivePath != "" {
		archive, err := store.NewSQLiteArchive(c.cfg.Ledger.ArchivePath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		c.archive = archive
	}

	c.ledger = order.NewLedger(order.LedgerConfig{
		Path:          c.cfg.Ledger.Path,
		Strategy:      c.cfg.Gateway.Strategy,
		Location:      loc,
		MaxPendingAge: c.cfg.Ledger.MaxPendingAge(),
	}, c.client, c.logger)
	if c.archive != nil {
		c.ledger.SetArchive(c.archive)
	}
	c.ledger.SetObserver(c.monitor)
	c.ledger.SetAlerter(c.alerts)
	c.ledger.OnChange(func(pending []order.Record) {
		c.hub.Broadcast(stream.TypePendingOrders, pending)
	})

	c.orders = order.NewManager(c.client, c.ledger, order.ManagerConfig{
		Strategy: c.cfg.Gateway.Strategy,
		Exchange: c.cfg.Gateway.Exchange,
		Product:  func() string { return c.settings.Load().Common.Product },
	}, c.logger)
	c.orders.SetObserver(c.monitor)
	c.orders.SetAlerter(c.alerts)

	if iv := c.cfg.Ledger.ReconcileInterval(); iv > 0 {
		c.reconciler = order.NewReconciler(c.ledger, order.ReconcilerConfig{Interval: iv}, c.logger)
	}

	c.server = server.New(server.Deps{
		Broker:   c.client,
		Ledger:   c.ledger,
		Orders:   c.orders,
		Settings: c.settings,
		Stream:   c.hub,
		Metrics:  c.monitor.Handler(),
		Logger:   c.logger,
	})
	return nil
}

// registerLifecycleComponents 注册顺序即启动顺序，停止时逆序
func (c *Container) registerLifecycleComponents() {
	c.http = newHTTPComponent("api", c.cfg.Server.Addr, c.server.Handler(), c.logger)
	c.lifecycle.Register("http server", c.http)

	if c.cfg.Server.MetricsAddr != "" {
		c.metrics = newHTTPComponent("metrics", c.cfg.Server.MetricsAddr, c.monitor.Handler(), c.logger)
		c.lifecycle.Register("metrics server", c.metrics)
	}

	if c.cfg.Settings.Watch {
		c.lifecycle.Register("settings watcher", &settingsWatcherComponent{
			store:    c.settings,
			hub:      c.hub,
			logger:   c.logger,
			cooldown: settingsWatchCooldown,
		})
	}

	if c.reconciler != nil {
		c.lifecycle.Register("reconciler", &reconcilerComponent{reconciler: c.reconciler})
	}

	c.lifecycle.Register("stream", &streamComponent{hub: c.hub})
	c.lifecycle.Register("systemd", newSystemdComponent(c.logger, c.HealthCheck))
}

// Start 启动所有组件
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.logger.Info("starting desk")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return err
	}
	c.started = true
	c.logger.Info("desk started", zap.String("addr", c.http.Addr()))
	return nil
}

// Stop 停止所有组件并释放资源
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	if c.started {
		c.logger.Info("stopping desk")
		lastErr = c.lifecycle.StopAll()
		c.started = false
	}
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			lastErr = err
		}
		c.archive = nil
	}
	if c.logger != nil {
		c.logger.Info("desk stopped")
		_ = c.logger.Close()
	}
	return lastErr
}

// Run 启动并阻塞到 ctx 结束
func (c *Container) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return c.Stop()
}

// HealthCheck 检查组件健康状态
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Addr 主 HTTP 服务实际监听地址
func (c *Container) Addr() string {
	if c.http == nil {
		return ""
	}
	return c.http.Addr()
}

func (c *Container) Config() config.AppConfig        { return c.cfg }
func (c *Container) Logger() *logger.Logger          { return c.logger }
func (c *Container) Monitor() *monitor.Monitor       { return c.monitor }
func (c *Container) Client() *gateway.OpenAlgoClient { return c.client }
func (c *Container) Settings() *settings.Store       { return c.settings }
func (c *Container) Archive() *store.SQLiteArchive   { return c.archive }
func (c *Container) Ledger() *order.Ledger           { return c.ledger }
func (c *Container) Orders() *order.Manager          { return c.orders }
func (c *Container) Hub() *stream.Hub                { return c.hub }
