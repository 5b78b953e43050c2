package repository

import (
	"context"
	"errors"
	"time"

	"factorlab/types"

	"github.com/jackc/pgx/v5"
)

// GetDailyReturns returns the daily returns of the security over [start, end] as
// stored, ordered by date. Fund returns stay in percent.
func (db *Database) GetDailyReturns(ctx context.Context, security types.Security, start, end time.Time) ([]types.DailyReturn, error) {
	args := GetDailyReturnsParams{
		Kind:      string(security.ID.Kind),
		Symbol:    security.ID.Symbol,
		StartDate: start,
		EndDate:   end,
	}
	rows, err := db.returns.GetDailyReturns(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoReturns
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoReturns
	}
	return convertDailyReturns(rows, security.ID), nil
}

// GetMarketOpenDates returns the trading dates over [start, end].
func (db *Database) GetMarketOpenDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	return db.calendar.GetMarketOpenDates(ctx, GetMarketOpenDatesParams{StartDate: start, EndDate: end})
}

func convertDailyReturns(rows []GetDailyReturnsRow, id types.SecurityID) []types.DailyReturn {
	var returns []types.DailyReturn
	for _, row := range rows {
		returns = append(returns, types.DailyReturn{
			SecurityID: id,
			Date:       row.Date,
			Close:      row.Close,
			Return:     row.DailyReturn,
		})
	}
	return returns
}
