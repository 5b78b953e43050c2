package engine

import (
	"context"
	"time"

	"factorlab/types"

	"github.com/shopspring/decimal"
)

type dataStore interface {
	GetMarketOpenDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
	GetDailyReturns(ctx context.Context, security types.Security, start, end time.Time) ([]types.DailyReturn, error)
}

// ReturnSource supplies the realized returns the ledger is marked to market with.
type ReturnSource interface {
	QueryReturn(security types.Security, on time.Time) (decimal.Decimal, error)
	QueryRangeReturn(security types.Security, start, end time.Time) (decimal.Decimal, error)
}

// PositionSource is a factor: a ranked target position per date.
type PositionSource interface {
	GetPosition(on time.Time) (types.Position, error)
	SetPortfolioAtStart(ledger LedgerWriter) error
}

// OrderPolicy decides, per held security and index, whether to trade outside the
// rebalance cadence.
type OrderPolicy interface {
	Init(api PortfolioApi) error
	GetOrder(security types.Security, index, lastRebalanceIndex int) (types.Order, error)
}

// PortfolioApi is the read-only view of the ledger.
type PortfolioApi interface {
	Len() int
	Date(index int) time.Time
	Cash(index int) decimal.Decimal
	TotalValue(index int) decimal.Decimal
	SecurityValue(security types.Security, index int) decimal.Decimal
	SecurityWeight(security types.Security, index int) decimal.Decimal
	HoldSecurities(index int) []types.Security
}

// LedgerWriter is the ledger with its weight mutation primitives.
type LedgerWriter interface {
	PortfolioApi
	AddSecurityWeight(security types.Security, weightDelta decimal.Decimal, index int) error
	ReduceSecurityWeight(security types.Security, weightDelta decimal.Decimal, index int) error
}

// MetricsRecorder receives run telemetry.
type MetricsRecorder interface {
	ObserveRebalance(trigger string, turnover float64)
	ObserveStop(kind string)
	SetTotalValue(value float64)
}
