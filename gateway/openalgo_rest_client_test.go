package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	endpoint string
	body     map[string]interface{}
}

func newBroker(t *testing.T, handler func(endpoint string, body map[string]interface{}) (int, string)) (*OpenAlgoClient, *[]recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		endpoint := r.URL.Path[len("/api/v1/"):]
		mu.Lock()
		calls = append(calls, recordedCall{endpoint: endpoint, body: body})
		mu.Unlock()
		code, resp := handler(endpoint, body)
		w.WriteHeader(code)
		io.WriteString(w, resp)
	}))
	t.Cleanup(ts.Close)
	return &OpenAlgoClient{
		BaseURL:    ts.URL + "/api/v1",
		APIKey:     "key",
		HTTPClient: ts.Client(),
	}, &calls
}

func TestPositionBookFiltersFlatAndParsesQuantity(t *testing.T) {
	cli, calls := newBroker(t, func(string, map[string]interface{}) (int, string) {
		return 200, `{"status":"success","data":[
			{"symbol":"NIFTY17FEB2625700CE","quantity":"130","exchange":"NFO","pnl":12.5},
			{"symbol":"NIFTY17FEB2625600PE","quantity":0},
			{"symbol":"BANKNIFTY24FEB2660500CE","quantity":"-30.0"}]}`
	})

	positions, err := cli.PositionBook(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 130, positions[0].Quantity)
	assert.Equal(t, -30, positions[1].Quantity)
	assert.Equal(t, "key", (*calls)[0].body["apikey"])

	// 原始字段原样透传
	out, err := json.Marshal(positions[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"pnl":12.5`)
	assert.Contains(t, string(out), `"quantity":130`)
}

func TestPositionQty(t *testing.T) {
	cli, _ := newBroker(t, func(string, map[string]interface{}) (int, string) {
		return 200, `{"status":"success","data":[{"symbol":"A","quantity":-65}]}`
	})
	q, err := cli.PositionQty(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, -65, q)

	q, err = cli.PositionQty(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, 0, q)
}

func TestPositionBookErrorStatus(t *testing.T) {
	cli, _ := newBroker(t, func(string, map[string]interface{}) (int, string) {
		return 200, `{"status":"error","message":"invalid apikey"}`
	})
	_, err := cli.PositionBook(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid apikey")
}

func TestPlaceSmartOrderBody(t *testing.T) {
	cli, calls := newBroker(t, func(string, map[string]interface{}) (int, string) {
		return 200, `{"status":"success","orderid":25021100000123}`
	})
	res := cli.PlaceSmartOrder(context.Background(), SmartOrderRequest{
		Strategy:     "trading_app",
		Symbol:       "NIFTY17FEB2625700CE",
		Exchange:     "NFO",
		Action:       "BUY",
		Quantity:     130,
		PositionSize: 130,
		Product:      "MIS",
		PriceType:    "LIMIT",
		Price:        decimal.NewNullDecimal(decimal.RequireFromString("101.05")),
	})
	require.True(t, res.OK())
	assert.Equal(t, "25021100000123", res.OrderID.String())

	body := (*calls)[0].body
	assert.Equal(t, "placesmartorder", (*calls)[0].endpoint)
	assert.Equal(t, "130", body["quantity"])
	assert.Equal(t, "130", body["position_size"])
	assert.Equal(t, "101.05", body["price"])
	assert.Equal(t, "0", body["trigger_price"])
	assert.Equal(t, "0", body["disclosed_quantity"])
}

func TestOrderBookNormalizesBothShapes(t *testing.T) {
	for name, payload := range map[string]string{
		"list":   `{"status":"success","data":[{"orderid":"1","status":"COMPLETE"},{"orderid":2,"order_status":"open"}]}`,
		"object": `{"status":"success","data":{"orders":[{"orderid":"1","status":"COMPLETE"},{"orderid":2,"order_status":"open"}],"statistics":{}}}`,
	} {
		payload := payload
		t.Run(name, func(t *testing.T) {
			cli, _ := newBroker(t, func(string, map[string]interface{}) (int, string) { return 200, payload })
			orders, err := cli.OrderBook(context.Background())
			require.NoError(t, err)
			require.Len(t, orders, 2)
			assert.Equal(t, "1", orders[0].OrderID.String())
			assert.Equal(t, "COMPLETE", orders[0].Status)
			assert.Equal(t, "2", orders[1].OrderID.String())
			assert.Equal(t, "open", orders[1].Status)
		})
	}
}

func TestCancelOrderBody(t *testing.T) {
	cli, calls := newBroker(t, func(string, map[string]interface{}) (int, string) {
		return 200, `{"status":"success","orderid":"77"}`
	})
	res := cli.CancelOrder(context.Background(), "77", "trading_app")
	assert.True(t, res.OK())
	assert.Equal(t, map[string]interface{}{"apikey": "key", "orderid": "77", "strategy": "trading_app"}, (*calls)[0].body)
}

func TestFailureConversion(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		body    string
		message string
	}{
		{"empty body", 200, "  ", "Empty response from API"},
		{"malformed", 200, "<html>", "invalid JSON from cancelorder"},
		{"http error with json", 400, `{"status":"error","message":"Order not found"}`, "Order not found"},
		{"http error without json", 502, "bad gateway", "HTTP 502: Bad Gateway"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cli, _ := newBroker(t, func(string, map[string]interface{}) (int, string) { return tc.code, tc.body })
			res := cli.CancelOrder(context.Background(), "1", "s")
			assert.Equal(t, StatusError, res.Status)
			assert.Contains(t, res.Message, tc.message)
		})
	}
}

func TestTimeoutBecomesErrorResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()
	cli := &OpenAlgoClient{BaseURL: ts.URL, HTTPClient: NewDefaultHTTPClient(20 * time.Millisecond)}

	res := cli.PlaceSmartOrder(context.Background(), SmartOrderRequest{Symbol: "X"})
	assert.Equal(t, StatusError, res.Status)
	assert.NotEmpty(t, res.Message)
}

func TestNilClient(t *testing.T) {
	var cli *OpenAlgoClient
	res := cli.CancelOrder(context.Background(), "1", "s")
	assert.Equal(t, "http client not set", res.Message)
}

type countingObserver struct {
	requests, errors map[string]int
}

func (o *countingObserver) RecordRESTRequest(e string)             { o.requests[e]++ }
func (o *countingObserver) RecordRESTError(e string)               { o.errors[e]++ }
func (o *countingObserver) RecordRESTLatency(e string, sec float64) {}

func TestObserverSeesErrors(t *testing.T) {
	cli, _ := newBroker(t, func(endpoint string, _ map[string]interface{}) (int, string) {
		if endpoint == "orderbook" {
			return 500, ""
		}
		return 200, `{"status":"success","data":[]}`
	})
	obs := &countingObserver{requests: map[string]int{}, errors: map[string]int{}}
	cli.Observer = obs

	_, err := cli.OrderBook(context.Background())
	assert.Error(t, err)
	_, err = cli.PositionBook(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 1, obs.requests["orderbook"])
	assert.Equal(t, 1, obs.errors["orderbook"])
	assert.Equal(t, 0, obs.errors["positionbook"])
}
