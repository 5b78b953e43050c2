package ranked

import (
	"testing"
	"time"

	"factorlab/internal/calendar"
	"factorlab/internal/engine"
	"factorlab/strategies/stopgainloss"
	"factorlab/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secA = types.NewTicker("AAA", "Tech")
	secB = types.NewTicker("BBB", "Energy")
	secC = types.NewTicker("CCC", "Utilities")
	day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func TestFactor_GetPosition(t *testing.T) {
	ranking := StaticRanker{secA, secB, secC}

	tests := []struct {
		name       string
		ranker     Ranker
		direction  Direction
		topN       int
		want       []types.Security
		wantWeight string
	}{
		{"long takes the head", ranking, Long, 2, []types.Security{secA, secB}, "0.5"},
		{"short takes the reversed tail", ranking, Short, 2, []types.Security{secC, secB}, "0.5"},
		{"top n larger than ranking", ranking, Long, 5, []types.Security{secA, secB, secC}, "0.3333333333333333"},
		{"single", ranking, Short, 1, []types.Security{secC}, "1"},
		{"empty ranking", StaticRanker{}, Long, 3, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFactor(tt.ranker, tt.direction, tt.topN)
			require.NoError(t, err)

			position, err := f.GetPosition(day0)
			require.NoError(t, err)
			require.Len(t, position, len(tt.want))
			for i, h := range position {
				assert.Equal(t, tt.want[i], h.Security)
				assert.True(t, h.Weight.Equal(decimal.RequireFromString(tt.wantWeight)), "weight %s", h.Weight)
			}
			assert.False(t, position.TotalWeight().GreaterThan(decimal.NewFromInt(1)))
		})
	}
}

func TestNewFactor_Validation(t *testing.T) {
	_, err := NewFactor(StaticRanker{secA}, Direction("sideways"), 1)
	assert.ErrorIs(t, err, ErrUnknownDirection)

	_, err = NewFactor(StaticRanker{secA}, Long, 0)
	assert.Error(t, err)
}

func TestFactor_GetPositionPropagatesRankerError(t *testing.T) {
	f, err := NewFactor(NewMomentumRanker(engine.NewMarket(), []types.Security{types.NewLocal("B0YBKJ7", "")}, 30), Long, 1)
	require.NoError(t, err)

	_, err = f.GetPosition(day0)
	assert.ErrorIs(t, err, engine.ErrUnsupportedSecurityType)
}

func TestFactor_SetPortfolioAtStart(t *testing.T) {
	cal := newTestCalendar(t, 3)
	p := engine.NewPortfolio(engine.NewPortfolioConfig(decimal.NewFromInt(100), "USD"), cal)
	f, err := NewFactor(StaticRanker{secA, secB, secC}, Long, 3)
	require.NoError(t, err)

	require.NoError(t, f.SetPortfolioAtStart(p))
	for _, s := range []types.Security{secA, secB, secC} {
		assert.True(t, p.SecurityWeight(s, 0).Sub(decimal.RequireFromString("0.3333333333")).Abs().LessThan(decimal.New(1, -9)))
	}
	assert.True(t, p.Cash(0).LessThan(decimal.New(1, -6)))
}

func TestMomentumRanker_Rank(t *testing.T) {
	market := engine.NewMarket()
	for i := 1; i <= 3; i++ {
		on := day0.AddDate(0, 0, i)
		market.Add(
			types.DailyReturn{SecurityID: secA.ID, Date: on, Return: decimal.RequireFromString("0.01")},
			types.DailyReturn{SecurityID: secB.ID, Date: on, Return: decimal.RequireFromString("0.02")},
		)
	}
	fund := types.NewFund("40012345", "Bonds")
	// Fund returns are stored in percent: 4.5 ranks between B and A.
	market.Add(types.DailyReturn{SecurityID: fund.ID, Date: day0.AddDate(0, 0, 3), Return: decimal.RequireFromString("4.5")})

	r := NewMomentumRanker(market, []types.Security{secC, secA, fund, secB}, 30)

	got, err := r.Rank(day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, []types.Security{secB, fund, secA, secC}, got)

	// Only the last day is inside a one-day window.
	got, err = NewMomentumRanker(market, []types.Security{secB, secA, fund}, 1).Rank(day0.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, []types.Security{secB, secA, fund}, got)

	// Before any data every score is zero and ties go by symbol.
	got, err = r.Rank(day0)
	require.NoError(t, err)
	assert.Equal(t, []types.Security{fund, secA, secB, secC}, got)
}

// A blacklisted security that tops the ranking on later dates never re-enters the
// portfolio; its weight goes to the other candidate.
func TestFactor_BlacklistedLeaderStaysExcluded(t *testing.T) {
	cal := newTestCalendar(t, 6)
	market := engine.NewMarket()
	for i := 1; i < cal.Len(); i++ {
		on := cal.Date(i)
		market.Add(
			types.DailyReturn{SecurityID: secA.ID, Date: on, Return: decimal.RequireFromString("0.01")},
			types.DailyReturn{SecurityID: secB.ID, Date: on, Return: decimal.RequireFromString("-0.01")},
			types.DailyReturn{SecurityID: secC.ID, Date: on, Return: decimal.RequireFromString("0.05")},
		)
	}
	f, err := NewFactor(NewMomentumRanker(market, []types.Security{secA, secB, secC}, 30), Long, 2)
	require.NoError(t, err)

	blacklist := types.NewBlacklist()
	blacklist.Add(secC)
	rebalanceConfig, err := engine.NewRebalanceConfig(1, types.Daily, false, engine.DefaultRoundingBuffer)
	require.NoError(t, err)
	e := engine.NewEngine(cal, market, f, stopgainloss.NoStrategy{}, blacklist,
		engine.NewPortfolioConfig(decimal.NewFromInt(100), "USD"),
		rebalanceConfig,
		engine.NewReportingConfig(decimal.RequireFromString("0.04"), "USD", t.TempDir()),
		engine.WithLogger(zerolog.Nop()))
	require.NoError(t, e.Run())

	p := e.Portfolio()
	assert.Equal(t, 4, e.Rebalances())
	assert.True(t, p.SecurityWeight(secA, 0).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, p.SecurityWeight(secB, 0).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, p.Turnover(1).Equal(decimal.RequireFromString("0.98")), "turnover(1) = %s", p.Turnover(1))
	for i := 0; i < cal.Len(); i++ {
		assert.True(t, p.SecurityWeight(secC, i).IsZero(), "weight(C,%d)", i)
	}
	for i := 1; i < cal.LastIndex(); i++ {
		assert.True(t, p.SecurityWeight(secB, i).IsZero(), "weight(B,%d)", i)
		assert.InDelta(t, 0.99, p.SecurityWeight(secA, i).InexactFloat64(), 1e-6, "weight(A,%d)", i)
	}
}

func TestStaticRanker_ReturnsCopy(t *testing.T) {
	r := StaticRanker{secA, secB}
	got, err := r.Rank(day0)
	require.NoError(t, err)
	got[0] = secC
	assert.Equal(t, secA, r[0])
}

func newTestCalendar(t *testing.T, days int) *calendar.Calendar {
	t.Helper()
	dates := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		dates = append(dates, day0.AddDate(0, 0, i))
	}
	cal, err := calendar.New(dates, dates[0], dates[len(dates)-1])
	if err != nil {
		t.Fatalf("calendar.New() error = %v", err)
	}
	return cal
}
