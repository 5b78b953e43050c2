package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type SecurityRow struct {
	ID     int64
	Kind   string
	Symbol string
	Name   string
	Sector string
}

const getSecurity = `SELECT id, kind, symbol, name, sector
FROM security
WHERE kind = $1 AND symbol = $2`

type GetSecurityParams struct {
	Kind   string
	Symbol string
}

func (q *Queries) GetSecurity(ctx context.Context, arg GetSecurityParams) (SecurityRow, error) {
	row := q.db.QueryRow(ctx, getSecurity, arg.Kind, arg.Symbol)
	var i SecurityRow
	err := row.Scan(&i.ID, &i.Kind, &i.Symbol, &i.Name, &i.Sector)
	return i, err
}

const listSecurities = `SELECT id, kind, symbol, name, sector
FROM security
ORDER BY kind, symbol`

func (q *Queries) ListSecurities(ctx context.Context) ([]SecurityRow, error) {
	rows, err := q.db.Query(ctx, listSecurities)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SecurityRow
	for rows.Next() {
		var i SecurityRow
		if err := rows.Scan(&i.ID, &i.Kind, &i.Symbol, &i.Name, &i.Sector); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getDailyReturns = `SELECT dr.date, dr.close, dr.daily_return
FROM daily_return dr
JOIN security s ON s.id = dr.security_id
WHERE s.kind = $1 AND s.symbol = $2 AND dr.date BETWEEN $3 AND $4
ORDER BY dr.date`

type GetDailyReturnsParams struct {
	Kind      string
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
}

type GetDailyReturnsRow struct {
	Date        time.Time
	Close       decimal.Decimal
	DailyReturn decimal.Decimal
}

func (q *Queries) GetDailyReturns(ctx context.Context, arg GetDailyReturnsParams) ([]GetDailyReturnsRow, error) {
	rows, err := q.db.Query(ctx, getDailyReturns, arg.Kind, arg.Symbol, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetDailyReturnsRow
	for rows.Next() {
		var i GetDailyReturnsRow
		if err := rows.Scan(&i.Date, &i.Close, &i.DailyReturn); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMarketOpenDates = `SELECT date
FROM market_calendar
WHERE date BETWEEN $1 AND $2
ORDER BY date`

type GetMarketOpenDatesParams struct {
	StartDate time.Time
	EndDate   time.Time
}

func (q *Queries) GetMarketOpenDates(ctx context.Context, arg GetMarketOpenDatesParams) ([]time.Time, error) {
	rows, err := q.db.Query(ctx, getMarketOpenDates, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []time.Time
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		items = append(items, date)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
