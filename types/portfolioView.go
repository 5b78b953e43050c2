package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerRecord is one row of the ledger: the portfolio state at a calendar index.
type LedgerRecord struct {
	Index      int
	Date       time.Time
	Cash       decimal.Decimal
	TotalValue decimal.Decimal
	Turnover   decimal.Decimal
}

// SecurityRecord is the state of one security at a calendar index.
type SecurityRecord struct {
	Index  int
	Date   time.Time
	Value  decimal.Decimal
	Weight decimal.Decimal
}
