package order

import (
	"context"
	"sync"
	"time"

	"option-desk-go/infrastructure/logger"
)

// Reconciler 服务端定时对账。浏览器轮询之外的可选补充，只在有 pending 记录时查询订单簿。
type Reconciler struct {
	ledger   *Ledger
	log      *logger.Logger
	interval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	// 统计信息
	totalReconciliations int64
	updates              int64
	lastReconcileTime    time.Time
}

// ReconcilerConfig 对账器配置
type ReconcilerConfig struct {
	Interval time.Duration // 对账间隔
}

// NewReconciler 创建订单对账器
func NewReconciler(ledger *Ledger, config ReconcilerConfig, log *logger.Logger) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		ledger:   ledger,
		log:      log,
		interval: config.Interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start 启动对账服务
func (r *Reconciler) Start(ctx context.Context) error {
	go r.reconcileLoop(ctx)
	return nil
}

// Stop 停止对账服务
func (r *Reconciler) Stop() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.doneChan // 等待循环退出
	return nil
}

// reconcileLoop 对账循环
func (r *Reconciler) reconcileLoop(ctx context.Context) {
	defer close(r.doneChan)

	r.mu.RLock()
	interval := r.interval
	r.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil {
				r.log.LogError(err, map[string]interface{}{"op": "reconcile_loop"})
			}
		}
	}
}

// Reconcile 执行一次对账；没有 pending 记录时不查询券商。
func (r *Reconciler) Reconcile(ctx context.Context) (bool, error) {
	r.mu.Lock()
	r.totalReconciliations++
	r.lastReconcileTime = time.Now()
	r.mu.Unlock()

	if len(r.ledger.Pending(ctx)) == 0 {
		return false, nil
	}
	updated, err := r.ledger.Reconcile(ctx)
	if updated {
		r.mu.Lock()
		r.updates++
		r.mu.Unlock()
	}
	return updated, err
}

// GetStatistics 获取对账统计信息
func (r *Reconciler) GetStatistics() ReconcilerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ReconcilerStats{
		TotalReconciliations: r.totalReconciliations,
		Updates:              r.updates,
		LastReconcileTime:    r.lastReconcileTime,
		Interval:             r.interval,
	}
}

// ReconcilerStats 对账统计信息
type ReconcilerStats struct {
	TotalReconciliations int64
	Updates              int64
	LastReconcileTime    time.Time
	Interval             time.Duration
}
