package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"factorlab/types"

	"github.com/shopspring/decimal"
)

/*
CSV layout

calendar.csv
date

securities.csv
kind,symbol,name,sector

returns/<kind>_<symbol>.csv, e.g. returns/ticker_XLE.csv
date,close,return

Dates are "2006-01-02". Fund returns are in percent, as in the database.
*/

const csvDateLayout = "2006-01-02"

// CSVStore reads market data from a directory of CSV files. Files are read on every
// call; the engine loads everything once before a run.
type CSVStore struct {
	dir string
}

func NewCSVStore(dir string) (*CSVStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("csv store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("csv store: %s is not a directory", dir)
	}
	return &CSVStore{dir: dir}, nil
}

// ReturnsPath is where the returns of a security are read from.
func (s *CSVStore) ReturnsPath(id types.SecurityID) string {
	name := strings.ToLower(string(id.Kind)) + "_" + id.Symbol + ".csv"
	return filepath.Join(s.dir, "returns", name)
}

func (s *CSVStore) GetMarketOpenDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := readCSVFile(filepath.Join(s.dir, "calendar.csv"), 1)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, row := range rows {
		date, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("calendar.csv: %w", err)
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		dates = append(dates, date)
	}
	return dates, nil
}

func (s *CSVStore) GetDailyReturns(ctx context.Context, security types.Security, start, end time.Time) ([]types.DailyReturn, error) {
	path := s.ReturnsPath(security.ID)
	rows, err := readCSVFile(path, 3)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoReturns
		}
		return nil, err
	}

	var returns []types.DailyReturn
	for _, row := range rows {
		date, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		closePrice, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("%s close on %s: %w", path, row[0], err)
		}
		r, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("%s return on %s: %w", path, row[0], err)
		}
		returns = append(returns, types.DailyReturn{
			SecurityID: security.ID,
			Date:       date,
			Close:      closePrice,
			Return:     r,
		})
	}
	if len(returns) == 0 {
		return nil, ErrNoReturns
	}
	return returns, nil
}

func (s *CSVStore) GetSecurity(ctx context.Context, id types.SecurityID) (types.Security, error) {
	securities, err := s.ListSecurities(ctx)
	if err != nil {
		return types.Security{}, err
	}
	for _, security := range securities {
		if security.ID == id {
			return security, nil
		}
	}
	return types.Security{}, fmt.Errorf("%s %s %w", id.Kind, id.Symbol, ErrSecurityNotFound)
}

func (s *CSVStore) ListSecurities(ctx context.Context) ([]types.Security, error) {
	rows, err := readCSVFile(filepath.Join(s.dir, "securities.csv"), 4)
	if err != nil {
		return nil, err
	}
	securities := make([]types.Security, 0, len(rows))
	for _, row := range rows {
		kind, err := types.ParseSymbolKind(row[0])
		if err != nil {
			return nil, fmt.Errorf("securities.csv: %w", err)
		}
		securities = append(securities, types.Security{
			ID:     types.SecurityID{Kind: kind, Symbol: row[1]},
			Name:   row[2],
			Sector: row[3],
		})
	}
	return securities, nil
}

// readCSVFile returns the data rows of a CSV file, skipping the header.
func readCSVFile(path string, minColumns int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	for i, row := range rows[1:] {
		if len(row) < minColumns {
			return nil, fmt.Errorf("%s line %d: want %d columns, got %d", path, i+2, minColumns, len(row))
		}
	}
	return rows[1:], nil
}
