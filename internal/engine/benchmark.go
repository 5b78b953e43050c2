package engine

import (
	"time"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Benchmark is the reference the portfolio is measured against.
type Benchmark struct {
	security types.Security
	market   ReturnSource
	calendar *calendar.Calendar
}

func NewBenchmark(security types.Security, market ReturnSource, cal *calendar.Calendar) *Benchmark {
	return &Benchmark{
		security: security,
		market:   market,
		calendar: cal,
	}
}

func (b *Benchmark) Security() types.Security { return b.security }

// Performance returns the benchmark value over the calendar, normalized to 100 on
// the first date.
func (b *Benchmark) Performance() ([]types.ValuePoint, error) {
	points := make([]types.ValuePoint, b.calendar.Len())
	value := hundred
	points[0] = types.ValuePoint{Date: b.calendar.Date(0), Value: value}
	for i := 1; i < b.calendar.Len(); i++ {
		r, err := b.market.QueryReturn(b.security, b.calendar.Date(i))
		if err != nil {
			return nil, err
		}
		value = value.Mul(one.Add(r))
		points[i] = types.ValuePoint{Date: b.calendar.Date(i), Value: value}
	}
	return points, nil
}

func (b *Benchmark) QueryRangeReturn(start, end time.Time) (decimal.Decimal, error) {
	return b.market.QueryRangeReturn(b.security, start, end)
}
