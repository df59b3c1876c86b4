package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"option-desk-go/gateway"
	"option-desk-go/internal/settings"
	"option-desk-go/order"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const healthTimeout = 3 * time.Second

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok", "broker": "ok"}
	if s.deps.Broker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.Broker.Ping(ctx); err != nil {
			body["broker"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, body)
}

// positions 券商查询失败时返回空列表
func (s *Server) positions(c *gin.Context) {
	positions, err := s.deps.Broker.PositionBook(c.Request.Context())
	if err != nil {
		s.log.Warn("positionbook failed", zap.Error(err))
		positions = []gateway.Position{}
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) pendingOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Ledger.Pending(c.Request.Context()))
}

func (s *Server) orders(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Ledger.All(c.Request.Context()))
}

func (s *Server) syncOrderStatus(c *gin.Context) {
	updated, err := s.deps.Ledger.Reconcile(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "updated": updated})
}

type cancelBody struct {
	OrderID json.RawMessage `json:"order_id"`
}

func (s *Server) cancelOrder(c *gin.Context) {
	var body cancelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, errors.New("invalid JSON body"))
		return
	}
	var id gateway.FlexString
	if err := id.UnmarshalJSON(body.OrderID); err != nil || strings.TrimSpace(id.String()) == "" {
		s.badRequest(c, errors.New("order_id is required"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Ledger.Cancel(c.Request.Context(), id.String()))
}

type smartOrderBody struct {
	Symbol         string          `json:"symbol"`
	TargetPosition json.RawMessage `json:"target_position"`
	Direction      string          `json:"direction"` // LONG / SHORT / FLAT，按设置的手数换算
	PriceType      string          `json:"pricetype"`
	Price          json.RawMessage `json:"price"`
	TriggerPrice   json.RawMessage `json:"trigger_price"`
}

func (s *Server) smartOrder(c *gin.Context) {
	var body smartOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, errors.New("invalid JSON body"))
		return
	}
	req, err := body.toRequest(s.deps.Settings)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	res, err := s.deps.Orders.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, order.ErrInvalidRequest) {
			s.badRequest(c, err)
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (b smartOrderBody) toRequest(st *settings.Store) (order.SmartOrder, error) {
	if strings.TrimSpace(b.Symbol) == "" {
		return order.SmartOrder{}, errors.New("symbol is required")
	}
	target, err := b.target(st)
	if err != nil {
		return order.SmartOrder{}, err
	}
	pt, err := order.ParsePriceType(b.PriceType)
	if err != nil {
		return order.SmartOrder{}, err
	}
	price, err := parsePrice("price", b.Price)
	if err != nil {
		return order.SmartOrder{}, err
	}
	trigger, err := parsePrice("trigger_price", b.TriggerPrice)
	if err != nil {
		return order.SmartOrder{}, err
	}
	return order.SmartOrder{
		Symbol:         strings.TrimSpace(b.Symbol),
		TargetPosition: target,
		PriceType:      pt,
		Price:          price,
		TriggerPrice:   trigger,
	}, nil
}

// target 取 target_position；只给 direction 时按 lot_size × quantity_lots 换算
func (b smartOrderBody) target(st *settings.Store) (int, error) {
	_, hasTarget := rawText(b.TargetPosition)
	direction := strings.TrimSpace(b.Direction)
	switch {
	case hasTarget && direction != "":
		return 0, errors.New("use either target_position or direction")
	case direction == "":
		return parseInt("target_position", b.TargetPosition)
	case st == nil:
		return 0, errors.New("direction requires settings")
	}
	dir, err := settings.ParseDirection(direction)
	if err != nil {
		return 0, err
	}
	return st.Load().TargetFor(strings.TrimSpace(b.Symbol), dir)
}

var (
	maxInt = decimal.NewFromInt(math.MaxInt32)
	minInt = decimal.NewFromInt(math.MinInt32)
)

// parseInt 接受 JSON 整数、整数值的小数或数字字符串
func parseInt(field string, raw json.RawMessage) (int, error) {
	text, present := rawText(raw)
	if !present {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	if d.LessThan(minInt) || d.GreaterThan(maxInt) {
		return 0, fmt.Errorf("%s out of range", field)
	}
	return int(d.IntPart()), nil
}

// parsePrice null、空串与缺省均视为未提供
func parsePrice(field string, raw json.RawMessage) (decimal.NullDecimal, error) {
	text, present := rawText(raw)
	if !present {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s must be a number", field)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("%s must not be negative", field)
	}
	return decimal.NewNullDecimal(d), nil
}

func rawText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", false
		}
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func (s *Server) getSettings(c *gin.Context) {
	cur := s.deps.Settings.Load()
	c.JSON(http.StatusOK, gin.H{"settings": cur, "symbols": cur.Symbols()})
}

// saveSettings 请求体按节合并到当前设置上
func (s *Server) saveSettings(c *gin.Context) {
	cur := s.deps.Settings.Load()
	if err := c.ShouldBindJSON(&cur); err != nil {
		s.badRequest(c, errors.New("invalid JSON body"))
		return
	}
	saved, err := s.deps.Settings.Save(cur)
	if err != nil {
		if settings.IsInvalid(err) {
			s.badRequest(c, err)
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "settings": saved, "symbols": saved.Symbols()})
}

type updateStrikeBody struct {
	Instrument string          `json:"instrument"`
	OptionType string          `json:"option_type"`
	Delta      json.RawMessage `json:"delta"`
}

func (s *Server) updateStrike(c *gin.Context) {
	var body updateStrikeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, errors.New("invalid JSON body"))
		return
	}
	delta := 0
	if _, present := rawText(body.Delta); present {
		d, err := parseInt("delta", body.Delta)
		if err != nil {
			s.badRequest(c, err)
			return
		}
		delta = d
	}
	up, err := s.deps.Settings.UpdateStrike(body.Instrument, body.OptionType, delta)
	if err != nil {
		if settings.IsInvalid(err) {
			s.badRequest(c, err)
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"old_strike": up.OldStrike,
		"new_strike": up.NewStrike,
		"old_symbol": up.OldSymbol,
		"new_symbol": up.NewSymbol,
	})
}

func (s *Server) instruments(c *gin.Context) {
	cur := s.deps.Settings.Load()
	c.JSON(http.StatusOK, gin.H{
		"cards":         cur.Cards(),
		"cards_layout":  cur.UI.CardsLayout,
		"quantity_lots": cur.Common.QuantityLots,
		"product":       cur.Common.Product,
	})
}
