package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"option-desk-go/gateway"
	"option-desk-go/infrastructure/logger"
	"option-desk-go/monitor/logschema"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateway 下单需要的券商接口；与 gateway.OpenAlgoClient 对接。
type Gateway interface {
	PositionSource
	PlaceSmartOrder(ctx context.Context, req gateway.SmartOrderRequest) gateway.Result
}

// PlacementObserver 下单指标
type PlacementObserver interface {
	RecordOrderPlaced()
}

// ManagerConfig 下单默认参数
type ManagerConfig struct {
	Strategy string
	Exchange string
	// Product 每次下单时读取（来自设置文件），为空时用 MIS。
	Product func() string
}

// SmartOrder 一次目标持仓下单请求
type SmartOrder struct {
	Symbol         string
	TargetPosition int
	PriceType      PriceType
	Price          decimal.NullDecimal
	TriggerPrice   decimal.NullDecimal
}

// Validate 校验价格类型与价格组合
func (o SmartOrder) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if o.TargetPosition > MaxTargetPosition || o.TargetPosition < -MaxTargetPosition {
		return fmt.Errorf("%w: target_position out of range", ErrInvalidRequest)
	}
	switch o.PriceType {
	case PriceMarket, PriceLimit, PriceSL, PriceSLM:
	default:
		return fmt.Errorf("%w: unknown pricetype %q", ErrInvalidRequest, o.PriceType)
	}
	if o.PriceType.NeedsPrice() && !positive(o.Price) {
		return fmt.Errorf("%w: price is required for %s orders", ErrInvalidRequest, o.PriceType)
	}
	if o.PriceType.NeedsTrigger() && !positive(o.TriggerPrice) {
		return fmt.Errorf("%w: trigger_price is required for %s orders", ErrInvalidRequest, o.PriceType)
	}
	return nil
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}

// Manager 把目标持仓换算成 placesmartorder，成功的非市价单记入账本。
type Manager struct {
	gw       Gateway
	ledger   *Ledger
	cfg      ManagerConfig
	log      *logger.Logger
	observer PlacementObserver
	alerter  RejectionAlerter
}

func NewManager(gw Gateway, ledger *Ledger, cfg ManagerConfig, log *logger.Logger) *Manager {
	if cfg.Strategy == "" {
		cfg.Strategy = "trading_app"
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "NFO"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		gw:     gw,
		ledger: ledger,
		cfg:    cfg,
		log:    log.WithFields(map[string]interface{}{"component": "smart_order"}),
	}
}

// SetObserver 设置下单指标
func (m *Manager) SetObserver(o PlacementObserver) { m.observer = o }

// RejectionAlerter 券商拒单按 error 级别告警
type RejectionAlerter interface {
	SendError(message string, fields map[string]interface{}) error
}

// SetAlerter 下单被拒时告警
func (m *Manager) SetAlerter(a RejectionAlerter) { m.alerter = a }

// Submit 校验、换算并下单。只有校验失败返回 error；券商失败体现在 Result 中。
func (m *Manager) Submit(ctx context.Context, req SmartOrder) (gateway.Result, error) {
	if req.PriceType == "" {
		req.PriceType = PriceMarket
	}
	if err := req.Validate(); err != nil {
		return gateway.Result{}, err
	}

	t, err := Translate(ctx, m.gw, req.Symbol, req.TargetPosition)
	if err != nil {
		m.log.Warn("translate failed", zap.String("symbol", req.Symbol), zap.Error(err))
		if errors.Is(err, ErrInvalidRequest) {
			return gateway.Result{}, err
		}
		return gateway.Result{Status: gateway.StatusError, Message: err.Error()}, nil
	}
	if t.NoOp {
		m.logPlacement(req, t, gateway.Result{Status: gateway.StatusSuccess, Message: t.Message})
		return gateway.Result{Status: gateway.StatusSuccess, Message: t.Message}, nil
	}

	res := m.gw.PlaceSmartOrder(ctx, gateway.SmartOrderRequest{
		Strategy:     m.cfg.Strategy,
		Symbol:       t.Symbol,
		Exchange:     m.cfg.Exchange,
		Action:       string(t.Action),
		Quantity:     t.Quantity,
		PositionSize: t.PositionSize,
		Product:      m.product(),
		PriceType:    string(req.PriceType),
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
	})
	m.logPlacement(req, t, res)
	if !res.OK() {
		m.alertRejected(t.Symbol, res.Message)
		return res, nil
	}
	if m.observer != nil {
		m.observer.RecordOrderPlaced()
	}

	if req.PriceType != PriceMarket && m.ledger != nil {
		orderID := res.OrderID.String()
		if orderID == "" {
			m.log.Warn("broker accepted order without orderid, not tracked", zap.String("symbol", t.Symbol))
			return res, nil
		}
		price := req.Price
		if !price.Valid || price.Decimal.IsZero() {
			price = decimal.NullDecimal{}
		}
		if _, err := m.ledger.Record(ctx, Record{
			OrderID:   orderID,
			Symbol:    t.Symbol,
			Action:    t.Action,
			Quantity:  t.Quantity,
			Price:     price,
			PriceType: req.PriceType,
		}); err != nil {
			m.log.LogError(err, map[string]interface{}{"op": "record", "order_id": orderID})
		}
	}
	return res, nil
}

func (m *Manager) product() string {
	if m.cfg.Product != nil {
		if p := strings.TrimSpace(m.cfg.Product()); p != "" {
			return p
		}
	}
	return "MIS"
}

func (m *Manager) logPlacement(req SmartOrder, t Translation, res gateway.Result) {
	fields := map[string]interface{}{
		"symbol":          t.Symbol,
		"target_position": req.TargetPosition,
		"pricetype":       string(req.PriceType),
		"status":          res.Status,
		"action":          string(t.Action),
		"quantity":        t.Quantity,
		"noop":            t.NoOp,
	}
	if res.Message != "" {
		fields["message"] = res.Message
	}
	if id := res.OrderID.String(); id != "" {
		fields["order_id"] = id
	}
	if err := logschema.Validate("smart_order", fields); err != nil {
		m.log.Warn("log schema mismatch", zap.Error(err))
	}
	m.log.LogEvent("smart_order", fields)
}

func (m *Manager) alertRejected(symbol, message string) {
	if m.alerter == nil {
		return
	}
	go func() {
		err := m.alerter.SendError("smart order rejected", map[string]interface{}{
			"symbol":  symbol,
			"message": message,
		})
		if err != nil {
			m.log.Warn("alert delivery failed", zap.Error(err))
		}
	}()
}
