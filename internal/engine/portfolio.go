package engine

import (
	"errors"
	"fmt"
	"time"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientCash    = errors.New("not enough cash to add")
	ErrInsufficientHolding = errors.New("not enough value to reduce")
	ErrNegativeWeight      = errors.New("weight delta must not be negative")
	ErrLedgerFinished      = errors.New("ledger is finished and read-only")
	ErrIndexOutOfRange     = errors.New("ledger index out of range")
)

// tolerance bounds the drift a weight or cash amount may show from decimal division
// before an add or reduce is rejected. Expressed as a fraction of the total value.
var tolerance = decimal.New(1, -9)

var one = decimal.NewFromInt(1)

// Portfolio is the ledger of a backtest: the per-index cash, total value and turnover,
// and per security the per-index value and weight.
type Portfolio struct {
	calendar   *calendar.Calendar
	book       []types.LedgerRecord
	securities map[types.SecurityID]*securityBook
	order      []types.SecurityID
	finished   bool
}

type securityBook struct {
	security types.Security
	values   []decimal.Decimal
	weights  []decimal.Decimal
}

// NewPortfolio creates a ledger over the calendar. Every index starts with the
// initial cash as both cash and total value.
func NewPortfolio(cfg *PortfolioConfig, cal *calendar.Calendar) *Portfolio {
	book := make([]types.LedgerRecord, cal.Len())
	for i := range book {
		book[i] = types.LedgerRecord{
			Index:      i,
			Date:       cal.Date(i),
			Cash:       cfg.initialCash,
			TotalValue: cfg.initialCash,
			Turnover:   decimal.Zero,
		}
	}
	return &Portfolio{
		calendar:   cal,
		book:       book,
		securities: make(map[types.SecurityID]*securityBook),
	}
}

func (p *Portfolio) securityBook(s types.Security) *securityBook {
	b, ok := p.securities[s.ID]
	if !ok {
		b = &securityBook{
			security: s,
			values:   make([]decimal.Decimal, len(p.book)),
			weights:  make([]decimal.Decimal, len(p.book)),
		}
		p.securities[s.ID] = b
		p.order = append(p.order, s.ID)
	}
	return b
}

func (p *Portfolio) checkWritable(index int) error {
	if p.finished {
		return ErrLedgerFinished
	}
	if index < 0 || index >= len(p.book) {
		return fmt.Errorf("index %d of %d: %w", index, len(p.book), ErrIndexOutOfRange)
	}
	return nil
}

// UpdateSecurityValue marks the security to market: its value at index is yesterday's
// value compounded by the daily return. A security not held yesterday stays at zero.
func (p *Portfolio) UpdateSecurityValue(s types.Security, index int, dailyReturn decimal.Decimal) error {
	if err := p.checkWritable(index); err != nil {
		return err
	}
	if index < 1 {
		return fmt.Errorf("update %s at index %d: %w", s, index, ErrIndexOutOfRange)
	}
	b := p.securityBook(s)
	value := b.values[index-1].Mul(one.Add(dailyReturn))
	// A return below -100% cannot leave a negative holding.
	if value.IsNegative() {
		value = decimal.Zero
	}
	b.values[index] = value
	return nil
}

// UpdatePortfolio carries yesterday's cash forward and revalues the index. It must run
// after every UpdateSecurityValue of the index and before any weight-based decision.
func (p *Portfolio) UpdatePortfolio(index int) error {
	if err := p.checkWritable(index); err != nil {
		return err
	}
	if index < 1 {
		return fmt.Errorf("update portfolio at index %d: %w", index, ErrIndexOutOfRange)
	}
	p.book[index].Cash = p.book[index-1].Cash
	return p.Revalue(index)
}

// Revalue recomputes the total value from the current cash and security values, then
// every security weight. Cash is left untouched.
func (p *Portfolio) Revalue(index int) error {
	if err := p.checkWritable(index); err != nil {
		return err
	}
	total := p.book[index].Cash
	for _, id := range p.order {
		total = total.Add(p.securities[id].values[index])
	}
	p.book[index].TotalValue = total

	for _, id := range p.order {
		b := p.securities[id]
		b.weights[index] = weightOf(b.values[index], total)
	}
	return nil
}

// AddSecurityWeight buys weightDelta of the total value at index with cash.
// The total value is unchanged.
func (p *Portfolio) AddSecurityWeight(s types.Security, weightDelta decimal.Decimal, index int) error {
	if err := p.checkWritable(index); err != nil {
		return err
	}
	if weightDelta.IsNegative() {
		return fmt.Errorf("add %s %s: %w", s, weightDelta, ErrNegativeWeight)
	}
	rec := &p.book[index]
	addValue := weightDelta.Mul(rec.TotalValue)
	cash := rec.Cash.Sub(addValue)
	if cash.IsNegative() {
		if cash.Abs().GreaterThan(tolerance.Mul(rec.TotalValue)) {
			return fmt.Errorf("add %s weight %s on %s (cash %s, need %s): %w",
				s.Display(), weightDelta.StringFixed(4), rec.Date.Format(calendar.DateFormat),
				rec.Cash.StringFixed(2), addValue.StringFixed(2), ErrInsufficientCash)
		}
		// Division residue: spend what is left.
		addValue = rec.Cash
		cash = decimal.Zero
	}

	b := p.securityBook(s)
	rec.Cash = cash
	b.values[index] = b.values[index].Add(addValue)
	b.weights[index] = weightOf(b.values[index], rec.TotalValue)
	return nil
}

// ReduceSecurityWeight sells weightDelta of the total value at index into cash.
// Reducing by the whole weight liquidates the exact held value. The total value is
// unchanged.
func (p *Portfolio) ReduceSecurityWeight(s types.Security, weightDelta decimal.Decimal, index int) error {
	if err := p.checkWritable(index); err != nil {
		return err
	}
	if weightDelta.IsNegative() {
		return fmt.Errorf("reduce %s %s: %w", s, weightDelta, ErrNegativeWeight)
	}
	rec := &p.book[index]
	b := p.securityBook(s)
	weight := b.weights[index]
	if weightDelta.GreaterThan(weight.Add(tolerance)) {
		return fmt.Errorf("reduce %s weight %s on %s (held %s): %w",
			s.Display(), weightDelta.StringFixed(4), rec.Date.Format(calendar.DateFormat),
			weight.StringFixed(4), ErrInsufficientHolding)
	}

	held := b.values[index]
	freed := weightDelta.Mul(rec.TotalValue)
	if weight.Sub(weightDelta).LessThanOrEqual(tolerance) || freed.GreaterThan(held) {
		freed = held
	}
	b.values[index] = held.Sub(freed)
	b.weights[index] = weightOf(b.values[index], rec.TotalValue)
	rec.Cash = rec.Cash.Add(freed)
	return nil
}

// HoldSecurities returns the securities with a positive value at index, in the order
// they were first referenced. It panics if index is out of range.
func (p *Portfolio) HoldSecurities(index int) []types.Security {
	var held []types.Security
	for _, id := range p.order {
		b := p.securities[id]
		if b.values[index].IsPositive() {
			held = append(held, b.security)
		}
	}
	return held
}

// Finish freezes the ledger. Any later mutation fails with ErrLedgerFinished.
func (p *Portfolio) Finish() {
	p.finished = true
}

func (p *Portfolio) IsFinished() bool { return p.finished }

func (p *Portfolio) setTurnover(index int, turnover decimal.Decimal) error {
	if err := p.checkWritable(index); err != nil {
		return err
	}
	p.book[index].Turnover = turnover
	return nil
}

func (p *Portfolio) Calendar() *calendar.Calendar { return p.calendar }

func (p *Portfolio) Len() int { return len(p.book) }

// The index accessors below panic if index is out of range, like calendar.Date.

func (p *Portfolio) Date(index int) time.Time { return p.book[index].Date }

func (p *Portfolio) Cash(index int) decimal.Decimal { return p.book[index].Cash }

func (p *Portfolio) TotalValue(index int) decimal.Decimal { return p.book[index].TotalValue }

func (p *Portfolio) Turnover(index int) decimal.Decimal { return p.book[index].Turnover }

// SecurityValue returns the value of s at index, zero for a security never referenced.
// For a referenced security it panics if index is out of range.
func (p *Portfolio) SecurityValue(s types.Security, index int) decimal.Decimal {
	b, ok := p.securities[s.ID]
	if !ok {
		return decimal.Zero
	}
	return b.values[index]
}

// SecurityWeight returns the weight of s at index, zero for a security never referenced.
func (p *Portfolio) SecurityWeight(s types.Security, index int) decimal.Decimal {
	b, ok := p.securities[s.ID]
	if !ok {
		return decimal.Zero
	}
	return b.weights[index]
}

// Securities returns every security the ledger has a record for.
func (p *Portfolio) Securities() []types.Security {
	out := make([]types.Security, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.securities[id].security)
	}
	return out
}

func (p *Portfolio) Records() []types.LedgerRecord {
	return append([]types.LedgerRecord(nil), p.book...)
}

func (p *Portfolio) SecurityRecords(s types.Security) []types.SecurityRecord {
	b, ok := p.securities[s.ID]
	if !ok {
		return nil
	}
	records := make([]types.SecurityRecord, len(p.book))
	for i := range p.book {
		records[i] = types.SecurityRecord{
			Index:  i,
			Date:   p.book[i].Date,
			Value:  b.values[i],
			Weight: b.weights[i],
		}
	}
	return records
}

func weightOf(value, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return value.Div(total)
}
