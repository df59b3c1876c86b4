package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"option-desk-go/gateway"
	"option-desk-go/infrastructure/logger"
	"option-desk-go/internal/store"
	"option-desk-go/monitor/logschema"

	"go.uber.org/zap"
)

// Broker 账本需要的券商接口
type Broker interface {
	OrderBook(ctx context.Context) ([]gateway.BrokerOrder, error)
	CancelOrder(ctx context.Context, orderID, strategy string) gateway.Result
}

// Archiver 日切时保存被清空的记录
type Archiver interface {
	Archive(ctx context.Context, orders []store.ArchivedOrder) error
}

// LedgerObserver 账本指标（由监控模块实现）
type LedgerObserver interface {
	RecordOrderRecorded()
	RecordOrderCanceled()
	RecordOrderReconciled(status string)
	SetPendingOrders(n int)
}

// Alerter 需要人工关注的情况（由告警模块实现）
type Alerter interface {
	SendWarning(message string, fields map[string]interface{}) error
}

// LedgerConfig 账本配置
type LedgerConfig struct {
	Path          string
	Strategy      string         // 撤单时带上的策略标签
	Location      *time.Location // 判断交易日的时区
	MaxPendingAge time.Duration  // 0 表示不标记 stale
}

// Ledger 按交易日保存的非市价单账本，整文件 JSON 持久化。
// 所有读改写都在 mu 内完成；券商调用在锁外进行。
type Ledger struct {
	mu sync.Mutex

	cfg      LedgerConfig
	broker   Broker
	archive  Archiver
	observer LedgerObserver
	alerter  Alerter
	onChange func(pending []Record)
	log      *logger.Logger
	sm       *StateMachine
	now      func() time.Time
}

// NewLedger 创建账本
func NewLedger(cfg LedgerConfig, broker Broker, log *logger.Logger) *Ledger {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "trading_app"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ledger{
		cfg:    cfg,
		broker: broker,
		log:    log.WithFields(map[string]interface{}{"component": "ledger"}),
		sm:     NewStateMachine(),
		now:    time.Now,
	}
}

// SetArchive 设置日切归档
func (l *Ledger) SetArchive(a Archiver) { l.archive = a }

// SetObserver 设置指标观察者
func (l *Ledger) SetObserver(o LedgerObserver) { l.observer = o }

// SetAlerter 设置告警出口
func (l *Ledger) SetAlerter(a Alerter) { l.alerter = a }

// OnChange 每次持久化后回调当前 pending 列表。回调在账本锁内执行，不能阻塞或回调账本。
func (l *Ledger) OnChange(fn func(pending []Record)) { l.onChange = fn }

// SetClock 替换时钟（测试用）
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Record 追加一条 pending 记录并持久化。同一 order_id 已存在时直接返回已有记录。
func (l *Ledger) Record(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.OrderID) == "" {
		return Record{}, fmt.Errorf("%w: order_id is required", ErrInvalidRequest)
	}
	if rec.PriceType == PriceMarket {
		return Record{}, fmt.Errorf("%w: market orders are not tracked", ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.loadLocked(ctx)
	for _, existing := range records {
		if existing.OrderID == rec.OrderID {
			return existing, nil
		}
	}

	rec.Timestamp = l.now().Unix()
	rec.Status = StatusPending
	rec.Stale = false
	records = append(records, rec)
	if err := l.saveLocked(records); err != nil {
		return Record{}, err
	}
	if l.observer != nil {
		l.observer.RecordOrderRecorded()
	}
	l.emit("order_recorded", rec.OrderID, map[string]interface{}{
		"symbol":    rec.Symbol,
		"action":    string(rec.Action),
		"quantity":  rec.Quantity,
		"pricetype": string(rec.PriceType),
		"price":     priceString(rec),
	})
	return rec, nil
}

// Pending 返回当日所有 pending 记录
func (l *Ledger) Pending(ctx context.Context) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return pendingOf(l.loadLocked(ctx))
}

// All 返回当日全部记录
func (l *Ledger) All(ctx context.Context) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx)
}

// Reconcile 用券商订单簿更新 pending 记录的终态，返回是否有变化。
// 订单簿查询失败视为没有更新，不返回错误；返回的错误只来自持久化。
func (l *Ledger) Reconcile(ctx context.Context) (bool, error) {
	if l.broker == nil {
		return false, errors.New("broker not set")
	}
	book, err := l.broker.OrderBook(ctx)
	if err != nil {
		l.log.Warn("orderbook query failed", zap.Error(err))
		l.alert("orderbook query failed", map[string]interface{}{"error": err.Error()})
		return false, nil
	}
	statuses := make(map[string]string, len(book))
	for _, o := range book {
		statuses[o.OrderID.String()] = o.Status
	}

	updated, stale, err := l.applyStatuses(ctx, statuses)
	for _, rec := range stale {
		l.alert("pending order stale", map[string]interface{}{
			"order_id": rec.OrderID,
			"symbol":   rec.Symbol,
			"since":    time.Unix(rec.Timestamp, 0).In(l.cfg.Location).Format(time.RFC3339),
		})
	}
	return updated, err
}

func (l *Ledger) applyStatuses(ctx context.Context, statuses map[string]string) (bool, []Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.loadLocked(ctx)
	now := l.now()
	updated := false
	var stale []Record
	for i := range records {
		rec := &records[i]
		if rec.Status != StatusPending {
			continue
		}
		raw, listed := statuses[rec.OrderID]
		if !listed {
			if l.markStale(rec, now) {
				stale = append(stale, *rec)
				updated = true
			}
			continue
		}
		next := ParseBrokerStatus(raw)
		if next == StatusUnknown {
			continue
		}
		if err := l.sm.ValidateTransition(rec.Status, next); err != nil {
			continue
		}
		l.emit("order_status", rec.OrderID, map[string]interface{}{
			"symbol": rec.Symbol,
			"from":   string(rec.Status),
			"to":     string(next),
			"desc":   l.sm.GetStateDescription(next),
		})
		rec.Status = next
		rec.Stale = false
		updated = true
		if l.observer != nil {
			l.observer.RecordOrderReconciled(string(next))
		}
	}
	if !updated {
		return false, nil, nil
	}
	if err := l.saveLocked(records); err != nil {
		return true, stale, err
	}
	return true, stale, nil
}

func (l *Ledger) markStale(rec *Record, now time.Time) bool {
	if l.cfg.MaxPendingAge <= 0 || rec.Stale || rec.Timestamp <= 0 {
		return false
	}
	age := now.Sub(time.Unix(rec.Timestamp, 0))
	if age <= l.cfg.MaxPendingAge {
		return false
	}
	rec.Stale = true
	l.emit("order_stale", rec.OrderID, map[string]interface{}{
		"symbol":  rec.Symbol,
		"age_sec": int64(age / time.Second),
	})
	return true
}

// Cancel 调用券商撤单；成功后把该 order_id 的 pending 记录标记为 cancelled。
// 券商失败时账本不变，结果原样返回。
func (l *Ledger) Cancel(ctx context.Context, orderID string) gateway.Result {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return gateway.Result{Status: gateway.StatusError, Message: "order_id is required"}
	}
	if l.broker == nil {
		return gateway.Result{Status: gateway.StatusError, Message: "broker not set"}
	}
	res := l.broker.CancelOrder(ctx, orderID, l.cfg.Strategy)
	if !res.OK() {
		l.log.Warn("cancel rejected by broker", zap.String("order_id", orderID), zap.String("message", res.Message))
		return res
	}
	if l.observer != nil {
		l.observer.RecordOrderCanceled()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.loadLocked(ctx)
	changed := 0
	for i := range records {
		if records[i].OrderID != orderID {
			continue
		}
		if err := l.sm.ValidateTransition(records[i].Status, StatusCancelled); err != nil {
			continue
		}
		if records[i].Status != StatusCancelled {
			records[i].Status = StatusCancelled
			records[i].Stale = false
			changed++
		}
	}
	l.emit("order_cancelled", orderID, map[string]interface{}{"records": changed})
	if changed > 0 {
		if err := l.saveLocked(records); err != nil {
			l.log.LogError(err, map[string]interface{}{"op": "cancel", "order_id": orderID})
		}
	}
	return res
}

// loadLocked 读取账本并执行日切。文件缺失或损坏时视为空账本。
func (l *Ledger) loadLocked(ctx context.Context) []Record {
	var records []Record
	ok, err := store.ReadJSON(l.cfg.Path, &records)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			l.log.Warn("ledger file corrupt, starting empty", zap.Error(err))
		} else {
			l.log.LogError(err, map[string]interface{}{"op": "load", "path": l.cfg.Path})
		}
		return []Record{}
	}
	if !ok || len(records) == 0 {
		return []Record{}
	}

	oldest := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp < oldest {
			oldest = r.Timestamp
		}
	}
	// 时间戳为 0 视为当日
	if oldest == 0 {
		return records
	}
	today := l.now().In(l.cfg.Location).Format("2006-01-02")
	oldestDate := time.Unix(oldest, 0).In(l.cfg.Location).Format("2006-01-02")
	if oldestDate == today {
		return records
	}

	l.archiveLocked(ctx, records)
	if err := l.saveLocked([]Record{}); err != nil {
		l.log.LogError(err, map[string]interface{}{"op": "rollover", "path": l.cfg.Path})
	}
	fields := map[string]interface{}{
		"discarded":   len(records),
		"oldest_date": oldestDate,
		"today":       today,
	}
	if err := logschema.Validate("ledger_rollover", fields); err != nil {
		l.log.Warn("log schema mismatch", zap.Error(err))
	}
	l.log.LogEvent("ledger_rollover", fields)
	return []Record{}
}

func (l *Ledger) archiveLocked(ctx context.Context, records []Record) {
	if l.archive == nil {
		return
	}
	archivedAt := l.now().UTC()
	rows := make([]store.ArchivedOrder, 0, len(records))
	for _, r := range records {
		rows = append(rows, store.ArchivedOrder{
			OrderID:    r.OrderID,
			Timestamp:  r.Timestamp,
			Symbol:     r.Symbol,
			Action:     string(r.Action),
			Quantity:   r.Quantity,
			Price:      priceString(r),
			PriceType:  string(r.PriceType),
			Status:     string(r.Status),
			ArchivedAt: archivedAt,
		})
	}
	if err := l.archive.Archive(ctx, rows); err != nil {
		l.log.LogError(err, map[string]interface{}{"op": "archive", "records": len(rows)})
	}
}

func (l *Ledger) saveLocked(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := store.WriteJSON(l.cfg.Path, records); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	pending := pendingOf(records)
	if l.observer != nil {
		l.observer.SetPendingOrders(len(pending))
	}
	if l.onChange != nil {
		l.onChange(pending)
	}
	return nil
}

func (l *Ledger) emit(event, orderID string, fields map[string]interface{}) {
	fields["order_id"] = orderID
	if err := logschema.Validate(event, fields); err != nil {
		l.log.Warn("log schema mismatch", zap.Error(err))
	}
	l.log.LogOrder(event, orderID, fields)
}

// alert 异步投递，webhook 慢不拖住对账请求
func (l *Ledger) alert(message string, fields map[string]interface{}) {
	if l.alerter == nil {
		return
	}
	go func() {
		if err := l.alerter.SendWarning(message, fields); err != nil {
			l.log.Warn("alert delivery failed", zap.String("alert", message), zap.Error(err))
		}
	}()
}

func pendingOf(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	return out
}

func priceString(r Record) string {
	if !r.Price.Valid {
		return ""
	}
	return r.Price.Decimal.String()
}
