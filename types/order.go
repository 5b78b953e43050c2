package types

import (
	"github.com/shopspring/decimal"
)

type OrderType string

type Trigger string

const (
	OrderBuy  OrderType = "BUY"
	OrderSell OrderType = "SELL"
	OrderNoop OrderType = "NOOP"

	TriggerNone     Trigger = ""
	TriggerStopGain Trigger = "STOP_GAIN"
	TriggerStopLoss Trigger = "STOP_LOSS"
)

// Order asks the ledger to move a security's weight by Weight, a delta magnitude.
type Order struct {
	Type     OrderType
	Security Security
	Weight   decimal.Decimal
	Trigger  Trigger
}

func NewOrder(orderType OrderType, security Security, weight decimal.Decimal, trigger Trigger) Order {
	return Order{
		Type:     orderType,
		Security: security,
		Weight:   weight,
		Trigger:  trigger,
	}
}

func Noop() Order {
	return Order{Type: OrderNoop}
}

// IsStop reports whether the order was emitted by a stop-gain or stop-loss event.
func (o Order) IsStop() bool {
	return o.Trigger == TriggerStopGain || o.Trigger == TriggerStopLoss
}
