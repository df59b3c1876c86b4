package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 4 << 20

// Observer 记录每次 REST 调用（由监控模块实现）。
type Observer interface {
	RecordRESTRequest(endpoint string)
	RecordRESTError(endpoint string)
	RecordRESTLatency(endpoint string, seconds float64)
}

// OpenAlgoClient 调用 OpenAlgo 兼容的券商 REST 接口，全部为带 apikey 的 JSON POST。
// HTTPClient 可注入 httptest。
type OpenAlgoClient struct {
	BaseURL    string // 例如 http://localhost:5000/api/v1
	APIKey     string
	HTTPClient *http.Client
	Limiter    RateLimiter
	Observer   Observer
}

// PositionBook 返回非零持仓。
func (c *OpenAlgoClient) PositionBook(ctx context.Context) ([]Position, error) {
	res := c.post(ctx, "positionbook", map[string]interface{}{"apikey": c.apiKey()})
	if err := res.Err("positionbook"); err != nil {
		return nil, err
	}
	var all []Position
	if len(bytes.TrimSpace(res.Data)) > 0 && string(bytes.TrimSpace(res.Data)) != "null" {
		if err := json.Unmarshal(res.Data, &all); err != nil {
			return nil, &APIError{Endpoint: "positionbook", Message: "decode data: " + err.Error()}
		}
	}
	out := make([]Position, 0, len(all))
	for _, p := range all {
		if p.Quantity != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// PositionQty 返回某合约的净持仓；查不到或失败均视为 0。
func (c *OpenAlgoClient) PositionQty(ctx context.Context, symbol string) (int, error) {
	positions, err := c.PositionBook(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.Quantity, nil
		}
	}
	return 0, nil
}

// PlaceSmartOrder 调用 placesmartorder，返回券商结果原样。
func (c *OpenAlgoClient) PlaceSmartOrder(ctx context.Context, req SmartOrderRequest) Result {
	return c.post(ctx, "placesmartorder", req.body(c.apiKey()))
}

// OrderBook 返回归一化后的订单簿。
func (c *OpenAlgoClient) OrderBook(ctx context.Context) ([]BrokerOrder, error) {
	res := c.post(ctx, "orderbook", map[string]interface{}{"apikey": c.apiKey()})
	if err := res.Err("orderbook"); err != nil {
		return nil, err
	}
	orders, err := normalizeOrderBook(res.Data)
	if err != nil {
		return nil, &APIError{Endpoint: "orderbook", Message: err.Error()}
	}
	return orders, nil
}

// CancelOrder 调用 cancelorder。
func (c *OpenAlgoClient) CancelOrder(ctx context.Context, orderID, strategy string) Result {
	return c.post(ctx, "cancelorder", map[string]interface{}{
		"apikey":   c.apiKey(),
		"orderid":  orderID,
		"strategy": strategy,
	})
}

// Ping 用 positionbook 探测券商可用性。
func (c *OpenAlgoClient) Ping(ctx context.Context) error {
	_, err := c.PositionBook(ctx)
	return err
}

func (c *OpenAlgoClient) apiKey() string {
	if c == nil {
		return ""
	}
	return c.APIKey
}

func (c *OpenAlgoClient) post(ctx context.Context, endpoint string, payload map[string]interface{}) Result {
	start := time.Now()
	if c != nil && c.Observer != nil {
		c.Observer.RecordRESTRequest(endpoint)
	}
	res := c.do(ctx, endpoint, payload)
	if c != nil && c.Observer != nil {
		c.Observer.RecordRESTLatency(endpoint, time.Since(start).Seconds())
		if !res.OK() {
			c.Observer.RecordRESTError(endpoint)
		}
	}
	return res
}

func (c *OpenAlgoClient) do(ctx context.Context, endpoint string, payload map[string]interface{}) Result {
	if c == nil || c.HTTPClient == nil {
		return errorResult("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return errorResult("%v", err)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errorResult("encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return errorResult("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errorResult("%v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errorResult("read response: %v", err)
	}

	if resp.StatusCode >= 300 {
		// 错误响应体若是 JSON 则原样返回
		var r Result
		if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &r) == nil {
			if r.Status == "" || r.Status == StatusSuccess {
				r.Status = StatusError
			}
			return r
		}
		return errorResult("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errorResult("Empty response from API")
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return errorResult("invalid JSON from %s: %v", endpoint, err)
	}
	return r
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
