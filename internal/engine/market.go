package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"factorlab/internal/calendar"
	"factorlab/internal/repository"
	"factorlab/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedSecurityType = errors.New("security type not supported")

// Fund returns are published in percent.
var percent = decimal.New(1, -2)

// Market answers return queries from history loaded once, before the simulation.
// A date without data has a zero return.
type Market struct {
	returns map[types.SecurityID]map[time.Time]decimal.Decimal
	dates   map[types.SecurityID][]time.Time
}

func NewMarket() *Market {
	return &Market{
		returns: make(map[types.SecurityID]map[time.Time]decimal.Decimal),
		dates:   make(map[types.SecurityID][]time.Time),
	}
}

// Add records daily returns. A later row for the same security and date wins.
func (m *Market) Add(rows ...types.DailyReturn) {
	touched := make(map[types.SecurityID]struct{})
	for _, row := range rows {
		series, ok := m.returns[row.SecurityID]
		if !ok {
			series = make(map[time.Time]decimal.Decimal)
			m.returns[row.SecurityID] = series
		}
		day := calendar.Day(row.Date)
		if _, ok := series[day]; !ok {
			m.dates[row.SecurityID] = append(m.dates[row.SecurityID], day)
			touched[row.SecurityID] = struct{}{}
		}
		series[day] = row.Return
	}
	for id := range touched {
		dates := m.dates[id]
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	}
}

// QueryReturn returns the daily return of the security on the given date.
func (m *Market) QueryReturn(security types.Security, on time.Time) (decimal.Decimal, error) {
	scale, err := returnScale(security)
	if err != nil {
		return decimal.Zero, err
	}
	r, ok := m.returns[security.ID][calendar.Day(on)]
	if !ok {
		return decimal.Zero, nil
	}
	return r.Mul(scale), nil
}

// QueryRangeReturn compounds the daily returns of the dates in (start, end].
func (m *Market) QueryRangeReturn(security types.Security, start, end time.Time) (decimal.Decimal, error) {
	scale, err := returnScale(security)
	if err != nil {
		return decimal.Zero, err
	}
	start, end = calendar.Day(start), calendar.Day(end)
	dates := m.dates[security.ID]
	from := sort.Search(len(dates), func(i int) bool { return dates[i].After(start) })

	growth := one
	n := 0
	for _, d := range dates[from:] {
		if d.After(end) {
			break
		}
		growth = growth.Mul(one.Add(m.returns[security.ID][d].Mul(scale)))
		n++
	}
	if n == 0 {
		return decimal.Zero, nil
	}
	return growth.Sub(one), nil
}

// Coverage returns the first and last date with data for the security, and the
// number of dates. Missing history silently flattens returns, so callers audit it.
func (m *Market) Coverage(security types.Security) (first, last time.Time, n int) {
	dates := m.dates[security.ID]
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, 0
	}
	return dates[0], dates[len(dates)-1], len(dates)
}

func returnScale(security types.Security) (decimal.Decimal, error) {
	switch security.ID.Kind {
	case types.SymbolTicker:
		return one, nil
	case types.SymbolFund:
		return percent, nil
	default:
		return decimal.Zero, fmt.Errorf("%s %s: %w", security.ID.Kind, security, ErrUnsupportedSecurityType)
	}
}

// LoadMarket fetches the daily returns of every security over [start, end].
func LoadMarket(ctx context.Context, store dataStore, securities []types.Security, start, end time.Time, logger zerolog.Logger) (*Market, error) {
	m := NewMarket()
	for _, security := range securities {
		if _, err := returnScale(security); err != nil {
			return nil, err
		}
		rows, err := store.GetDailyReturns(ctx, security, start, end)
		if err != nil {
			if errors.Is(err, repository.ErrNoReturns) {
				logger.Warn().Str("security", security.Display()).Msg("no return data, returns default to zero")
				continue
			}
			return nil, fmt.Errorf("load returns for %s: %w", security, err)
		}
		m.Add(rows...)

		first, _, n := m.Coverage(security)
		if first.After(calendar.Day(start)) {
			logger.Warn().
				Str("security", security.Display()).
				Str("earliest", first.Format(calendar.DateFormat)).
				Msg("not enough history data")
		}
		logger.Debug().Str("security", security.Display()).Int("rows", n).Msg("loaded returns")
	}
	return m, nil
}

// LoadCalendar builds the trading calendar over [start, end] from the store.
func LoadCalendar(ctx context.Context, store dataStore, start, end time.Time) (*calendar.Calendar, error) {
	dates, err := store.GetMarketOpenDates(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load market open dates: %w", err)
	}
	return calendar.New(dates, start, end)
}
