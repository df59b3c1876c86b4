package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid request")

// MaxTargetPosition 目标持仓绝对值上限
const MaxTargetPosition = math.MaxInt32

// FlatMessage 已经空仓时的提示
const FlatMessage = "Already flat — no action needed"

// PositionSource 查询某合约当前净持仓
type PositionSource interface {
	PositionQty(ctx context.Context, symbol string) (int, error)
}

// Translation 目标持仓换算出的下单指令。NoOp 表示无需下单。
type Translation struct {
	Symbol       string
	Action       Action
	Quantity     int
	PositionSize int
	NoOp         bool
	Message      string
}

// Translate 把目标净持仓换算为方向与数量。
// target 非零时按绝对目标下单，不查询持仓；target 为零时查询当前持仓并反向平掉。
func Translate(ctx context.Context, positions PositionSource, symbol string, target int) (Translation, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return Translation{}, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if target > MaxTargetPosition || target < -MaxTargetPosition {
		return Translation{}, fmt.Errorf("%w: target_position out of range", ErrInvalidRequest)
	}
	t := Translation{Symbol: symbol, PositionSize: target}

	if target != 0 {
		t.Quantity = abs(target)
		t.Action = ActionBuy
		if target < 0 {
			t.Action = ActionSell
		}
		return t, nil
	}

	if positions == nil {
		return Translation{}, errors.New("position source not set")
	}
	current, err := positions.PositionQty(ctx, symbol)
	// 查询失败不能当成已平仓
	if err != nil {
		return Translation{}, fmt.Errorf("position lookup %s: %w", symbol, err)
	}
	if current == 0 {
		t.NoOp = true
		t.Message = FlatMessage
		return t, nil
	}
	t.Quantity = abs(current)
	if t.Quantity <= 0 || t.Quantity > MaxTargetPosition {
		return Translation{}, fmt.Errorf("position %d for %s out of range", current, symbol)
	}
	t.Action = ActionSell
	if current < 0 {
		t.Action = ActionBuy
	}
	return t, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
