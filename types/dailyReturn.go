package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyReturn is the close and the close-to-close return of a security on one trading day.
type DailyReturn struct {
	SecurityID SecurityID      `json:"securityId"`
	Date       time.Time       `json:"date"`
	Close      decimal.Decimal `json:"close"`
	Return     decimal.Decimal `json:"return"`
}

// ValuePoint is one point of a normalized performance series.
type ValuePoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}
