package order

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"option-desk-go/gateway"
	"option-desk-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeBroker 同时实现 Gateway 和 Broker
type fakeBroker struct {
	mu sync.Mutex

	positions   map[string]int
	positionErr error

	placeResult gateway.Result
	placed      []gateway.SmartOrderRequest

	book    []gateway.BrokerOrder
	bookErr error
	bookHit int

	cancelResult gateway.Result
	cancels      []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		positions:    map[string]int{},
		placeResult:  gateway.Result{Status: gateway.StatusSuccess, OrderID: "1001"},
		cancelResult: gateway.Result{Status: gateway.StatusSuccess},
	}
}

func (f *fakeBroker) PositionQty(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionErr != nil {
		return 0, f.positionErr
	}
	return f.positions[symbol], nil
}

func (f *fakeBroker) PlaceSmartOrder(ctx context.Context, req gateway.SmartOrderRequest) gateway.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return f.placeResult
}

func (f *fakeBroker) OrderBook(ctx context.Context) ([]gateway.BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookHit++
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return append([]gateway.BrokerOrder(nil), f.book...), nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID, strategy string) gateway.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	return f.cancelResult
}

func (f *fakeBroker) setBook(pairs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.book = nil
	for i := 0; i+1 < len(pairs); i += 2 {
		f.book = append(f.book, gateway.BrokerOrder{OrderID: gateway.FlexString(pairs[i]), Status: pairs[i+1]})
	}
}

var errBrokerDown = errors.New("connection refused")

// 2026-02-17 10:15 IST
var testNow = time.Date(2026, 2, 17, 10, 15, 0, 0, mustLoc("Asia/Kolkata"))

func mustLoc(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

func newTestLedger(t *testing.T, broker Broker) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "orders.json")
	l := NewLedger(LedgerConfig{Path: path, Location: testNow.Location()}, broker, nil)
	l.SetClock(func() time.Time { return testNow })
	return l, path
}

func limitRecord(id string) Record {
	return Record{
		OrderID:   id,
		Symbol:    "NIFTY17FEB2625700CE",
		Action:    ActionBuy,
		Quantity:  130,
		Price:     decimal.NewNullDecimal(decimal.RequireFromString("101.05")),
		PriceType: PriceLimit,
	}
}

type memArchive struct {
	rows []store.ArchivedOrder
	err  error
}

func (m *memArchive) Archive(ctx context.Context, orders []store.ArchivedOrder) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, orders...)
	return nil
}

type countingObserver struct {
	mu                          sync.Mutex
	placed, recorded, cancelled int
	reconciled                  map[string]int
	pending                     int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{reconciled: map[string]int{}}
}

func (c *countingObserver) RecordOrderPlaced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placed++
}

func (c *countingObserver) RecordOrderRecorded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorded++
}

func (c *countingObserver) RecordOrderCanceled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled++
}

func (c *countingObserver) RecordOrderReconciled(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciled[status]++
}

func (c *countingObserver) SetPendingOrders(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = n
}

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
	fields   []map[string]interface{}
}

func (r *recordingAlerter) SendWarning(message string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	r.fields = append(r.fields, fields)
	return nil
}

func (r *recordingAlerter) SendError(message string, fields map[string]interface{}) error {
	return r.SendWarning(message, fields)
}

// waitFor 等待 n 条异步告警，返回快照
func (r *recordingAlerter) waitFor(t *testing.T, n int) ([]string, []map[string]interface{}) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.messages) >= n
	}, time.Second, 5*time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...), append([]map[string]interface{}(nil), r.fields...)
}
