package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result 是券商接口的统一返回形状；网络/解析错误同样转换为 Result。
type Result struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	OrderID FlexString      `json:"orderid,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err 把非 success 的结果转换为 error。
func (r Result) Err(endpoint string) error {
	if r.OK() {
		return nil
	}
	return &APIError{Endpoint: endpoint, Message: r.Message}
}

func errorResult(format string, args ...interface{}) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// APIError 券商返回非 success。
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Endpoint + ": broker returned error"
	}
	return e.Endpoint + ": " + e.Message
}

// FlexString 兼容字符串或数字形式的 JSON 字段（订单号）。
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// parseQuantity 解析 "130" / 130 / "-65.0"，按浮点解析后截断为整数。
func parseQuantity(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", text, err)
	}
	return int(f), nil
}

// Position 券商持仓；保留原始字段以便原样返回给前端，quantity 归一为整数。
type Position struct {
	Symbol   string
	Exchange string
	Product  string
	Quantity int
	raw      map[string]json.RawMessage
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.raw = raw
	p.Symbol = rawString(raw["symbol"])
	p.Exchange = rawString(raw["exchange"])
	p.Product = rawString(raw["product"])
	qty, err := parseQuantity(raw["quantity"])
	if err != nil {
		return err
	}
	p.Quantity = qty
	return nil
}

func (p Position) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.raw)+4)
	for k, v := range p.raw {
		out[k] = v
	}
	out["symbol"] = p.Symbol
	out["quantity"] = p.Quantity
	if p.Exchange != "" {
		out["exchange"] = p.Exchange
	}
	if p.Product != "" {
		out["product"] = p.Product
	}
	return json.Marshal(out)
}

// BrokerOrder 订单簿条目，只保留对账需要的字段。
type BrokerOrder struct {
	OrderID FlexString
	Status  string
	Symbol  string
}

func (o *BrokerOrder) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := o.OrderID.UnmarshalJSON(raw["orderid"]); err != nil {
		return err
	}
	o.Status = rawString(raw["status"])
	if o.Status == "" {
		o.Status = rawString(raw["order_status"])
	}
	o.Symbol = rawString(raw["symbol"])
	return nil
}

// normalizeOrderBook 兼容 data 为数组或 {orders: [...]} 两种形状。
func normalizeOrderBook(data json.RawMessage) ([]BrokerOrder, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	switch data[0] {
	case '[':
		var list []BrokerOrder
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode orderbook list: %w", err)
		}
		return list, nil
	case '{':
		var wrapped struct {
			Orders []BrokerOrder `json:"orders"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode orderbook object: %w", err)
		}
		return wrapped.Orders, nil
	default:
		return nil, fmt.Errorf("unexpected orderbook data %.20q", string(data))
	}
}

func rawString(raw json.RawMessage) string {
	var f FlexString
	if err := f.UnmarshalJSON(raw); err != nil {
		return ""
	}
	return string(f)
}

// SmartOrderRequest placesmartorder 的参数
type SmartOrderRequest struct {
	Strategy     string
	Symbol       string
	Exchange     string
	Action       string
	Quantity     int
	PositionSize int
	Product      string
	PriceType    string
	Price        decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
}

func priceField(p decimal.NullDecimal) string {
	if !p.Valid || p.Decimal.IsZero() {
		return "0"
	}
	return p.Decimal.String()
}

func (r SmartOrderRequest) body(apiKey string) map[string]interface{} {
	return map[string]interface{}{
		"apikey":             apiKey,
		"strategy":           r.Strategy,
		"symbol":             r.Symbol,
		"exchange":           r.Exchange,
		"action":             r.Action,
		"quantity":           strconv.Itoa(r.Quantity),
		"position_size":      strconv.Itoa(r.PositionSize),
		"product":            r.Product,
		"pricetype":          r.PriceType,
		"price":              priceField(r.Price),
		"trigger_price":      priceField(r.TriggerPrice),
		"disclosed_quantity": "0",
	}
}
