package engine

import (
	"errors"
	"testing"
	"time"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/shopspring/decimal"
)

var (
	secA = types.NewTicker("AAA", "Tech")
	secB = types.NewTicker("BBB", "Energy")
	secC = types.NewTicker("CCC", "Utilities")
)

func TestPortfolio_AddSecurityWeight(t *testing.T) {
	p := newTestPortfolio(t, 3, "100")

	if err := p.AddSecurityWeight(secA, decimal.RequireFromString("0.5"), 0); err != nil {
		t.Fatalf("AddSecurityWeight() error = %v", err)
	}
	assertDecimal(t, "cash(0)", p.Cash(0), "50")
	assertDecimal(t, "value(A,0)", p.SecurityValue(secA, 0), "50")
	assertDecimal(t, "weight(A,0)", p.SecurityWeight(secA, 0), "0.5")
	assertDecimal(t, "total(0)", p.TotalValue(0), "100")
}

func TestPortfolio_MarkToMarket(t *testing.T) {
	p := newTestPortfolio(t, 3, "100")
	mustAdd(t, p, secA, "0.5", 0)

	if err := p.UpdateSecurityValue(secA, 1, decimal.RequireFromString("0.10")); err != nil {
		t.Fatalf("UpdateSecurityValue() error = %v", err)
	}
	assertDecimal(t, "value(A,1)", p.SecurityValue(secA, 1), "55")

	if err := p.UpdatePortfolio(1); err != nil {
		t.Fatalf("UpdatePortfolio() error = %v", err)
	}
	assertDecimal(t, "cash(1)", p.Cash(1), "50")
	assertDecimal(t, "total(1)", p.TotalValue(1), "105")
	assertNear(t, "weight(A,1)", p.SecurityWeight(secA, 1), decimal.RequireFromString("55").Div(decimal.RequireFromString("105")))
}

func TestPortfolio_RebalanceReducesHolding(t *testing.T) {
	p := newTestPortfolio(t, 3, "100")
	mustAdd(t, p, secA, "0.5", 0)
	mustMark(t, p, 1, map[types.Security]string{secA: "0.10"})

	factor := &stubFactor{position: types.Position{{Security: secA, Weight: decimal.RequireFromString("0.3")}}}
	r := newTestRebalancer(t, p, factor, types.NewBlacklist(), "0")

	before := p.SecurityWeight(secA, 1)
	turnover, err := r.Run(1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantTurnover := before.Sub(decimal.RequireFromString("0.3"))
	assertNear(t, "turnover", turnover, wantTurnover)
	assertNear(t, "turnover(1)", p.Turnover(1), wantTurnover)
	assertNear(t, "weight(A,1)", p.SecurityWeight(secA, 1), decimal.RequireFromString("0.3"))
	assertNear(t, "value(A,1)", p.SecurityValue(secA, 1), decimal.RequireFromString("31.5"))
	assertNear(t, "cash(1)", p.Cash(1), decimal.RequireFromString("73.5"))
	assertDecimal(t, "total(1)", p.TotalValue(1), "105")
	assertLedgerConsistent(t, p, 1)
}

func TestPortfolio_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *Portfolio)
		op      func(p *Portfolio) error
		wantErr error
	}{
		{
			name:    "add more than cash",
			setup:   func(p *Portfolio) { _ = p.AddSecurityWeight(secA, decimal.RequireFromString("0.5"), 0) },
			op:      func(p *Portfolio) error { return p.AddSecurityWeight(secB, decimal.RequireFromString("0.9"), 0) },
			wantErr: ErrInsufficientCash,
		},
		{
			name:    "reduce more than held",
			setup:   func(p *Portfolio) { _ = p.AddSecurityWeight(secA, decimal.RequireFromString("0.2"), 0) },
			op:      func(p *Portfolio) error { return p.ReduceSecurityWeight(secA, decimal.RequireFromString("0.3"), 0) },
			wantErr: ErrInsufficientHolding,
		},
		{
			name:    "reduce never held",
			op:      func(p *Portfolio) error { return p.ReduceSecurityWeight(secC, decimal.RequireFromString("0.1"), 0) },
			wantErr: ErrInsufficientHolding,
		},
		{
			name:    "negative delta",
			op:      func(p *Portfolio) error { return p.AddSecurityWeight(secA, decimal.RequireFromString("-0.1"), 0) },
			wantErr: ErrNegativeWeight,
		},
		{
			name:    "index past calendar",
			op:      func(p *Portfolio) error { return p.AddSecurityWeight(secA, decimal.RequireFromString("0.1"), 3) },
			wantErr: ErrIndexOutOfRange,
		},
		{
			name:    "mark to market at index 0",
			op:      func(p *Portfolio) error { return p.UpdateSecurityValue(secA, 0, decimal.Zero) },
			wantErr: ErrIndexOutOfRange,
		},
		{
			name:    "write after finish",
			setup:   func(p *Portfolio) { p.Finish() },
			op:      func(p *Portfolio) error { return p.UpdatePortfolio(1) },
			wantErr: ErrLedgerFinished,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPortfolio(t, 3, "100")
			if tc.setup != nil {
				tc.setup(p)
			}
			cashBefore := p.Cash(0)

			err := tc.op(p)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if !p.Cash(0).Equal(cashBefore) {
				t.Errorf("cash(0) = %s after failed op, want %s", p.Cash(0), cashBefore)
			}
		})
	}
}

func TestPortfolio_ReduceWholeWeightLiquidates(t *testing.T) {
	p := newTestPortfolio(t, 3, "100")
	mustAdd(t, p, secA, "0.4", 0)
	mustMark(t, p, 1, map[types.Security]string{secA: "0.07"})

	weight := p.SecurityWeight(secA, 1)
	if err := p.ReduceSecurityWeight(secA, weight, 1); err != nil {
		t.Fatalf("ReduceSecurityWeight() error = %v", err)
	}
	assertDecimal(t, "value(A,1)", p.SecurityValue(secA, 1), "0")
	assertDecimal(t, "cash(1)", p.Cash(1), "102.8")
	if held := p.HoldSecurities(1); len(held) != 0 {
		t.Errorf("HoldSecurities(1) = %v, want none", held)
	}
}

func TestPortfolio_UpdateSecurityValueClampsAtZero(t *testing.T) {
	p := newTestPortfolio(t, 2, "100")
	mustAdd(t, p, secA, "0.5", 0)

	if err := p.UpdateSecurityValue(secA, 1, decimal.RequireFromString("-1.5")); err != nil {
		t.Fatalf("UpdateSecurityValue() error = %v", err)
	}
	assertDecimal(t, "value(A,1)", p.SecurityValue(secA, 1), "0")
}

func TestPortfolio_HoldSecuritiesKeepsFirstReferenceOrder(t *testing.T) {
	p := newTestPortfolio(t, 2, "100")
	mustAdd(t, p, secC, "0.1", 0)
	mustAdd(t, p, secA, "0.1", 0)
	mustAdd(t, p, secB, "0.1", 0)

	held := p.HoldSecurities(0)
	want := []types.Security{secC, secA, secB}
	if len(held) != len(want) {
		t.Fatalf("HoldSecurities(0) = %v, want %v", held, want)
	}
	for i := range want {
		if !held[i].Is(want[i]) {
			t.Errorf("HoldSecurities(0)[%d] = %s, want %s", i, held[i], want[i])
		}
	}
}

func TestPortfolio_AccessorsOutOfRange(t *testing.T) {
	p := newTestPortfolio(t, 2, "100")
	mustAdd(t, p, secA, "0.5", 0)

	// Never referenced: zero at any index.
	assertDecimal(t, "value(B,5)", p.SecurityValue(secB, 5), "0")
	assertDecimal(t, "weight(B,-1)", p.SecurityWeight(secB, -1), "0")

	tests := []struct {
		name string
		call func()
	}{
		{"HoldSecurities", func() { p.HoldSecurities(2) }},
		{"Date", func() { p.Date(-1) }},
		{"Cash", func() { p.Cash(2) }},
		{"TotalValue", func() { p.TotalValue(2) }},
		{"Turnover", func() { p.Turnover(-1) }},
		{"SecurityValue", func() { p.SecurityValue(secA, 2) }},
		{"SecurityWeight", func() { p.SecurityWeight(secA, -1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic on an out-of-range index", tt.name)
				}
			}()
			tt.call()
		})
	}
}

// Cash carries forward, value compounds, and the accounting identities hold on
// every index.
func TestPortfolio_Invariants(t *testing.T) {
	const days = 30
	p := newTestPortfolio(t, days, "1000")
	mustAdd(t, p, secA, "0.3", 0)
	mustAdd(t, p, secB, "0.3", 0)
	mustAdd(t, p, secC, "0.3", 0)

	returns := []string{"0.012", "-0.031", "0.004", "0.025", "-0.017", "0"}
	for i := 1; i < days; i++ {
		for j, s := range p.HoldSecurities(i - 1) {
			r := decimal.RequireFromString(returns[(i+j)%len(returns)])
			if err := p.UpdateSecurityValue(s, i, r); err != nil {
				t.Fatalf("UpdateSecurityValue(%d) error = %v", i, err)
			}
		}
		if err := p.UpdatePortfolio(i); err != nil {
			t.Fatalf("UpdatePortfolio(%d) error = %v", i, err)
		}
		// Shuffle some weight around every fifth day.
		if i%5 == 0 {
			if err := p.ReduceSecurityWeight(secA, p.SecurityWeight(secA, i).Div(decimal.NewFromInt(2)), i); err != nil {
				t.Fatalf("ReduceSecurityWeight(%d) error = %v", i, err)
			}
			if err := p.AddSecurityWeight(secB, p.Cash(i).Div(p.TotalValue(i)), i); err != nil {
				t.Fatalf("AddSecurityWeight(%d) error = %v", i, err)
			}
		}
		assertLedgerConsistent(t, p, i)
	}
}

func newTestCalendar(t *testing.T, days int) *calendar.Calendar {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	cal, err := calendar.New(dates, dates[0], dates[len(dates)-1])
	if err != nil {
		t.Fatalf("calendar.New() error = %v", err)
	}
	return cal
}

func newTestPortfolio(t *testing.T, days int, cash string) *Portfolio {
	t.Helper()
	return NewPortfolio(NewPortfolioConfig(decimal.RequireFromString(cash), "USD"), newTestCalendar(t, days))
}

func mustAdd(t *testing.T, p *Portfolio, s types.Security, weight string, index int) {
	t.Helper()
	if err := p.AddSecurityWeight(s, decimal.RequireFromString(weight), index); err != nil {
		t.Fatalf("AddSecurityWeight(%s, %s, %d) error = %v", s, weight, index, err)
	}
}

func mustMark(t *testing.T, p *Portfolio, index int, returns map[types.Security]string) {
	t.Helper()
	for _, s := range p.HoldSecurities(index - 1) {
		r := decimal.Zero
		if v, ok := returns[s]; ok {
			r = decimal.RequireFromString(v)
		}
		if err := p.UpdateSecurityValue(s, index, r); err != nil {
			t.Fatalf("UpdateSecurityValue(%s, %d) error = %v", s, index, err)
		}
	}
	if err := p.UpdatePortfolio(index); err != nil {
		t.Fatalf("UpdatePortfolio(%d) error = %v", index, err)
	}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func assertNear(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if got.Sub(want).Abs().GreaterThan(decimal.New(1, -6)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func assertLedgerConsistent(t *testing.T, p *Portfolio, index int) {
	t.Helper()
	total := p.TotalValue(index)
	sum := p.Cash(index)
	if p.Cash(index).IsNegative() {
		t.Errorf("cash(%d) = %s, want >= 0", index, p.Cash(index))
	}
	for _, s := range p.Securities() {
		v := p.SecurityValue(s, index)
		if v.IsNegative() {
			t.Errorf("value(%s,%d) = %s, want >= 0", s, index, v)
		}
		sum = sum.Add(v)
		if total.IsPositive() {
			assertNear(t, "weight("+s.String()+")", p.SecurityWeight(s, index), v.Div(total))
		}
	}
	assertNear(t, "total", total, sum)
}
