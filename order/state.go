package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Action 下单方向
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// PriceType 券商价格类型
type PriceType string

const (
	PriceMarket PriceType = "MARKET"
	PriceLimit  PriceType = "LIMIT"
	PriceSL     PriceType = "SL"
	PriceSLM    PriceType = "SL-M"
)

// ParsePriceType 空字符串视为 MARKET；大小写不敏感。
func ParsePriceType(s string) (PriceType, error) {
	switch pt := PriceType(strings.ToUpper(strings.TrimSpace(s))); pt {
	case "":
		return PriceMarket, nil
	case PriceMarket, PriceLimit, PriceSL, PriceSLM:
		return pt, nil
	default:
		return "", fmt.Errorf("%w: unknown pricetype %q", ErrInvalidRequest, s)
	}
}

// NeedsPrice LIMIT 和 SL 需要限价
func (p PriceType) NeedsPrice() bool { return p == PriceLimit || p == PriceSL }

// NeedsTrigger SL 和 SL-M 需要触发价
func (p PriceType) NeedsTrigger() bool { return p == PriceSL || p == PriceSLM }

// Status 本地订单状态，小写存储。
type Status string

const (
	StatusPending   Status = "pending"
	StatusComplete  Status = "complete"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusClosed    Status = "closed"
	// StatusUnknown 券商返回了未识别的状态，不会写入账本。
	StatusUnknown Status = "unknown"
)

// ParseBrokerStatus 把券商订单簿状态归一为本地状态。
// 只有 COMPLETE/REJECTED/CANCELLED/CLOSED 是可识别终态，其它一律 StatusUnknown。
// 不区分大小写：部分券商在订单簿里返回 complete/rejected。
func ParseBrokerStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMPLETE":
		return StatusComplete
	case "REJECTED":
		return StatusRejected
	case "CANCELLED":
		return StatusCancelled
	case "CLOSED":
		return StatusClosed
	default:
		return StatusUnknown
	}
}

// Record 账本中的一条非市价单。
type Record struct {
	OrderID   string              `json:"order_id"`
	Timestamp int64               `json:"timestamp"`
	Symbol    string              `json:"symbol"`
	Action    Action              `json:"action"`
	Quantity  int                 `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
	PriceType PriceType           `json:"pricetype"`
	Status    Status              `json:"status"`
	Stale     bool                `json:"stale,omitempty"`
}
