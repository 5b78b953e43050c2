package engine

import (
	"fmt"
	"time"

	"factorlab/types"

	"github.com/shopspring/decimal"
)

// DefaultRoundingBuffer is the weight held back from a rebalance target so that
// decimal residue never overdraws cash.
var DefaultRoundingBuffer = decimal.RequireFromString("0.01")

type BacktestConfig struct {
	start time.Time
	end   time.Time
	// lookback is loaded ahead of start so factors can rank on history.
	lookback time.Duration
}

func NewBacktestConfig(start, end time.Time, lookback time.Duration) *BacktestConfig {
	return &BacktestConfig{
		start:    start,
		end:      end,
		lookback: lookback,
	}
}

func (c *BacktestConfig) Start() time.Time { return c.start }

func (c *BacktestConfig) End() time.Time { return c.end }

// HistoryStart is the first date market data is loaded from.
func (c *BacktestConfig) HistoryStart() time.Time { return c.start.Add(-c.lookback) }

type PortfolioConfig struct {
	initialCash decimal.Decimal
	currency    string
}

func NewPortfolioConfig(initialCash decimal.Decimal, currency string) *PortfolioConfig {
	return &PortfolioConfig{
		initialCash: initialCash,
		currency:    currency,
	}
}

type RebalanceConfig struct {
	period         int
	interval       types.Cadence
	disabled       bool
	roundingBuffer decimal.Decimal
}

func NewRebalanceConfig(period int, interval types.Cadence, disabled bool, roundingBuffer decimal.Decimal) (*RebalanceConfig, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rebalance period must be positive, got %d", period)
	}
	if _, err := types.ParseCadence(string(interval)); err != nil {
		return nil, err
	}
	if roundingBuffer.IsNegative() {
		return nil, fmt.Errorf("rounding buffer must not be negative, got %s", roundingBuffer)
	}
	return &RebalanceConfig{
		period:         period,
		interval:       interval,
		disabled:       disabled,
		roundingBuffer: roundingBuffer,
	}, nil
}

type ReportingConfig struct {
	riskFreeRate decimal.Decimal
	currency     string
	outputDir    string
}

func NewReportingConfig(riskFreeRate decimal.Decimal, currency string, outputDir string) *ReportingConfig {
	return &ReportingConfig{
		riskFreeRate: riskFreeRate,
		currency:     currency,
		outputDir:    outputDir,
	}
}

func (c *ReportingConfig) OutputDir() string { return c.outputDir }
