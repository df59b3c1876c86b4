package order

import "fmt"

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 账本订单状态机：pending 只能进入终态，终态不可再变。
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	for _, to := range []Status{StatusComplete, StatusRejected, StatusCancelled, StatusClosed} {
		sm.transitions[StateTransition{From: StatusPending, To: to}] = true
	}
	return sm
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	// 相同状态允许（幂等性）
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(status Status) bool {
	switch status {
	case StatusComplete, StatusRejected, StatusCancelled, StatusClosed:
		return true
	default:
		return false
	}
}

// GetStateDescription 获取状态描述
func (sm *StateMachine) GetStateDescription(status Status) string {
	descriptions := map[Status]string{
		StatusPending:   "订单待成交",
		StatusComplete:  "订单完全成交",
		StatusRejected:  "订单被拒绝",
		StatusCancelled: "订单已撤销",
		StatusClosed:    "订单已关闭",
	}
	if desc, ok := descriptions[status]; ok {
		return desc
	}
	return "未知状态"
}
