package order

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateTargetAbsolute(t *testing.T) {
	broker := newFakeBroker()
	broker.positionErr = errors.New("must not be called")

	for _, target := range []int{1, 65, 130, 1000} {
		tr, err := Translate(context.Background(), broker, "NIFTY17FEB2625700CE", target)
		require.NoError(t, err)
		assert.Equal(t, ActionBuy, tr.Action)
		assert.Equal(t, target, tr.Quantity)
		assert.Equal(t, target, tr.PositionSize)
		assert.False(t, tr.NoOp)

		tr, err = Translate(context.Background(), broker, "NIFTY17FEB2625700CE", -target)
		require.NoError(t, err)
		assert.Equal(t, ActionSell, tr.Action)
		assert.Equal(t, target, tr.Quantity)
		assert.Equal(t, -target, tr.PositionSize)
	}
}

func TestTranslateFlatten(t *testing.T) {
	cases := []struct {
		name    string
		current int
		action  Action
		qty     int
		noop    bool
	}{
		{"long", 130, ActionSell, 130, false},
		{"short", -60, ActionBuy, 60, false},
		{"flat", 0, "", 0, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			broker := newFakeBroker()
			broker.positions["BANKNIFTY24FEB2660500CE"] = tc.current
			tr, err := Translate(context.Background(), broker, "BANKNIFTY24FEB2660500CE", 0)
			require.NoError(t, err)
			assert.Equal(t, tc.noop, tr.NoOp)
			assert.Equal(t, tc.action, tr.Action)
			assert.Equal(t, tc.qty, tr.Quantity)
			if tc.noop {
				assert.Equal(t, FlatMessage, tr.Message)
			}
		})
	}
}

func TestTranslateErrors(t *testing.T) {
	_, err := Translate(context.Background(), newFakeBroker(), "  ", 10)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	broker := newFakeBroker()
	broker.positionErr = errBrokerDown
	_, err = Translate(context.Background(), broker, "X", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBrokerDown))
	assert.False(t, errors.Is(err, ErrInvalidRequest))
}

func TestTranslateRejectsOutOfRange(t *testing.T) {
	broker := newFakeBroker()
	for _, target := range []int{MaxTargetPosition + 1, -MaxTargetPosition - 1, math.MinInt64} {
		_, err := Translate(context.Background(), broker, "X", target)
		assert.ErrorIs(t, err, ErrInvalidRequest, "target %d", target)
	}

	// 券商返回的异常持仓不会变成负数量
	broker.positions["X"] = math.MinInt64
	_, err := Translate(context.Background(), broker, "X", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
}
