package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	tradingDaysPerYear = 252
	weeksPerYear       = 52

	// volatility below this is treated as none
	minStdDev = 1e-12
)

type Report struct {
	RunID       string
	Currency    string
	StartDate   time.Time
	EndDate     time.Time
	TradingDays int
	Benchmark   string

	// Absolute performance
	InitialValue     decimal.Decimal
	FinalValue       decimal.Decimal
	TotalReturn      decimal.Decimal
	AnnualizedReturn decimal.Decimal

	// Relative to the benchmark
	BenchmarkAnnualizedReturn decimal.Decimal
	RelativeAnnualizedReturn  decimal.Decimal
	InformationRatio          decimal.Decimal

	// Risk
	SharpeRatio        decimal.Decimal
	MaxDrawdown        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MaxDrawdownDays    int

	// Trading activity
	AvgMonthlyTurnover decimal.Decimal
	Rebalances         int
	StopEvents         int
	Blacklisted        []string
}

// GenerateReport measures the finished ledger against the benchmark.
func (e *Engine) GenerateReport(benchmark *Benchmark) (*Report, error) {
	p := e.portfolio
	if !p.IsFinished() {
		return nil, fmt.Errorf("generate report: ledger not finished")
	}
	benchmarkPoints, err := benchmark.Performance()
	if err != nil {
		return nil, fmt.Errorf("benchmark performance: %w", err)
	}
	values := portfolioPoints(p)
	years := annualizedFactor(p.Date(0), p.Date(p.Len()-1))

	report := &Report{
		RunID:        e.runID,
		Currency:     e.reportingConfig.currency,
		StartDate:    p.Date(0),
		EndDate:      p.Date(p.Len() - 1),
		TradingDays:  p.Len(),
		Benchmark:    benchmark.Security().Display(),
		InitialValue: values[0].Value,
		FinalValue:   values[len(values)-1].Value,
		Rebalances:   e.backtester.rebalances,
		StopEvents:   e.backtester.stops,
	}
	for _, s := range e.blacklist.List() {
		report.Blacklisted = append(report.Blacklisted, s.Display())
	}

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		report.TotalReturn, report.AnnualizedReturn = calcAnnualizedReturn(values, years, &wg)
	}()
	go func() {
		_, report.BenchmarkAnnualizedReturn = calcAnnualizedReturn(benchmarkPoints, years, &wg)
	}()
	go func() {
		report.InformationRatio = calcInformationRatio(values, benchmarkPoints, years, &wg)
	}()
	go func() {
		report.SharpeRatio = calcSharpeRatio(values, e.reportingConfig.riskFreeRate, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(values, &wg)
	}()
	go func() {
		report.AvgMonthlyTurnover = calcAvgMonthlyTurnover(p.Records(), years, &wg)
	}()
	wg.Wait()

	report.RelativeAnnualizedReturn = report.AnnualizedReturn.Sub(report.BenchmarkAnnualizedReturn)
	return report, nil
}

func portfolioPoints(p *Portfolio) []types.ValuePoint {
	points := make([]types.ValuePoint, p.Len())
	for i := range points {
		points[i] = types.ValuePoint{Date: p.Date(i), Value: p.TotalValue(i)}
	}
	return points
}

// annualizedFactor is the length of the period in years of 365 days.
func annualizedFactor(start, end time.Time) float64 {
	return end.Sub(start).Hours() / (24 * 365)
}

func calcAnnualizedReturn(points []types.ValuePoint, years float64, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()
	if len(points) < 2 || !points[0].Value.IsPositive() {
		return decimal.Zero, decimal.Zero
	}

	total := points[len(points)-1].Value.Sub(points[0].Value).Div(points[0].Value)
	if years <= 0 {
		return total, decimal.Zero
	}
	growth := one.Add(total).InexactFloat64()
	if growth <= 0 {
		return total, decimal.NewFromInt(-1)
	}
	return total, fromFloat(math.Pow(growth, 1/years) - 1)
}

func calcInformationRatio(portfolio, benchmark []types.ValuePoint, years float64, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if years <= 0 {
		return decimal.Zero
	}

	portfolioWeekly := weeklyReturns(portfolio)
	benchmarkWeekly := weeklyReturns(benchmark)
	var relative []float64
	for _, week := range sortedWeeks(portfolioWeekly) {
		b, ok := benchmarkWeekly[week]
		if !ok {
			continue
		}
		relative = append(relative, portfolioWeekly[week]-b)
	}
	if len(relative) < 2 {
		return decimal.Zero
	}

	trackingError := sampleStdDev(relative) * math.Sqrt(weeksPerYear)
	if trackingError < minStdDev {
		return decimal.Zero
	}
	relativeAnnualized := annualize(portfolio, years) - annualize(benchmark, years)
	return fromFloat(relativeAnnualized / trackingError)
}

// calcSharpeRatio is the daily Sharpe ratio against the annual risk-free rate.
func calcSharpeRatio(points []types.ValuePoint, annualRiskFree decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	returns := dailyReturns(points)
	if len(returns) < 2 {
		return decimal.Zero
	}

	rfDaily := math.Pow(1+annualRiskFree.InexactFloat64(), 1.0/tradingDaysPerYear) - 1
	var sum float64
	for _, r := range returns {
		sum += r - rfDaily
	}
	meanExcess := sum / float64(len(returns))

	std := populationStdDev(returns)
	if std < minStdDev {
		return decimal.Zero
	}
	return fromFloat(meanExcess / std)
}

func calcDrawdownMetrics(points []types.ValuePoint, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, int) {
	defer wg.Done()

	if len(points) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := decimal.Zero
	var peakTime time.Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	maxDDDays := 0

	for i, point := range points {
		if i == 0 || point.Value.GreaterThan(peak) {
			peak = point.Value
			peakTime = point.Date
		}

		if peak.IsPositive() {
			dd := peak.Sub(point.Value)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
				maxDDPct = dd.Div(peak)
				maxDDDays = int(point.Date.Sub(peakTime).Hours() / 24)
			}
		}
	}

	return maxDD, maxDDPct, maxDDDays
}

func calcAvgMonthlyTurnover(records []types.LedgerRecord, years float64, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if years <= 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Turnover)
	}
	return total.Div(decimal.NewFromFloat(years)).Div(decimal.NewFromInt(12))
}

type isoWeek struct {
	year int
	week int
}

// weeklyReturns returns, per ISO week, the return from the first to the last value
// of that week.
func weeklyReturns(points []types.ValuePoint) map[isoWeek]float64 {
	type bounds struct {
		first, last types.ValuePoint
	}
	weeks := make(map[isoWeek]*bounds)
	for _, point := range points {
		y, w := point.Date.ISOWeek()
		key := isoWeek{y, w}
		b, ok := weeks[key]
		if !ok {
			weeks[key] = &bounds{first: point, last: point}
			continue
		}
		if point.Date.Before(b.first.Date) {
			b.first = point
		}
		if point.Date.After(b.last.Date) {
			b.last = point
		}
	}

	out := make(map[isoWeek]float64, len(weeks))
	for key, b := range weeks {
		if !b.first.Value.IsPositive() {
			continue
		}
		out[key] = b.last.Value.Sub(b.first.Value).Div(b.first.Value).InexactFloat64()
	}
	return out
}

func sortedWeeks(m map[isoWeek]float64) []isoWeek {
	keys := make([]isoWeek, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})
	return keys
}

func dailyReturns(points []types.ValuePoint) []float64 {
	returns := make([]float64, 0, len(points))
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Value
		if !prev.IsPositive() {
			continue
		}
		returns = append(returns, points[i].Value.Sub(prev).Div(prev).InexactFloat64())
	}
	return returns
}

func annualize(points []types.ValuePoint, years float64) float64 {
	first := points[0].Value.InexactFloat64()
	last := points[len(points)-1].Value.InexactFloat64()
	if first <= 0 || last <= 0 {
		return 0
	}
	return math.Pow(last/first, 1/years) - 1
}

// fromFloat maps NaN and infinities, which annualizing a very short run can produce,
// to zero.
func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStdDev(xs []float64) float64 {
	m := mean(xs)
	var v float64
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)-1))
}

func populationStdDev(xs []float64) float64 {
	m := mean(xs)
	var v float64
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)))
}

// formatMoney renders a value in the currency's own format, e.g. "$1,234.56".
func formatMoney(value decimal.Decimal, code string) string {
	if money.GetCurrency(code) == nil {
		return value.StringFixed(2) + " " + code
	}
	cur := *money.New(0, code).Currency()
	return cur.Formatter().Format(value.Shift(int32(cur.Fraction)).Round(0).IntPart())
}

func formatPercent(d decimal.Decimal) string {
	return d.Mul(hundred).StringFixed(2) + "%"
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Backtest report\n\n")
	fmt.Fprintf(&b, "Run `%s`, %s to %s, %d trading days, benchmark **%s**.\n\n",
		r.RunID, r.StartDate.Format(calendar.DateFormat), r.EndDate.Format(calendar.DateFormat), r.TradingDays, r.Benchmark)

	fmt.Fprintf(&b, "## Absolute performance\n\n| Metric | Value |\n| --- | --- |\n")
	fmt.Fprintf(&b, "| Initial value | %s |\n", formatMoney(r.InitialValue, r.Currency))
	fmt.Fprintf(&b, "| Final value | %s |\n", formatMoney(r.FinalValue, r.Currency))
	fmt.Fprintf(&b, "| Total return | %s |\n", formatPercent(r.TotalReturn))
	fmt.Fprintf(&b, "| Annualized return | %s |\n\n", formatPercent(r.AnnualizedReturn))

	fmt.Fprintf(&b, "## Relative to %s\n\n| Metric | Value |\n| --- | --- |\n", r.Benchmark)
	fmt.Fprintf(&b, "| Benchmark annualized return | %s |\n", formatPercent(r.BenchmarkAnnualizedReturn))
	fmt.Fprintf(&b, "| Relative annualized return | %s |\n", formatPercent(r.RelativeAnnualizedReturn))
	fmt.Fprintf(&b, "| Information ratio | %s |\n\n", r.InformationRatio.StringFixed(3))

	fmt.Fprintf(&b, "## Risk\n\n| Metric | Value |\n| --- | --- |\n")
	fmt.Fprintf(&b, "| Sharpe ratio (daily) | %s |\n", r.SharpeRatio.StringFixed(4))
	fmt.Fprintf(&b, "| Max drawdown | %s |\n", formatMoney(r.MaxDrawdown, r.Currency))
	fmt.Fprintf(&b, "| Max drawdown %% | %s |\n", formatPercent(r.MaxDrawdownPercent))
	fmt.Fprintf(&b, "| Max drawdown days | %d |\n\n", r.MaxDrawdownDays)

	fmt.Fprintf(&b, "## Trading\n\n| Metric | Value |\n| --- | --- |\n")
	fmt.Fprintf(&b, "| Avg monthly turnover | %s |\n", r.AvgMonthlyTurnover.StringFixed(4))
	fmt.Fprintf(&b, "| Rebalances | %d |\n", r.Rebalances)
	fmt.Fprintf(&b, "| Stop events | %d |\n", r.StopEvents)
	if len(r.Blacklisted) > 0 {
		fmt.Fprintf(&b, "| Blacklisted | %s |\n", strings.Join(r.Blacklisted, ", "))
	}
	return b.String()
}

type reportFile struct {
	RunID                     string   `yaml:"run_id"`
	Currency                  string   `yaml:"currency"`
	StartDate                 string   `yaml:"start_date"`
	EndDate                   string   `yaml:"end_date"`
	TradingDays               int      `yaml:"trading_days"`
	Benchmark                 string   `yaml:"benchmark"`
	InitialValue              string   `yaml:"initial_value"`
	FinalValue                string   `yaml:"final_value"`
	TotalReturn               string   `yaml:"total_return"`
	AnnualizedReturn          string   `yaml:"annualized_return"`
	BenchmarkAnnualizedReturn string   `yaml:"benchmark_annualized_return"`
	RelativeAnnualizedReturn  string   `yaml:"relative_annualized_return"`
	InformationRatio          string   `yaml:"information_ratio"`
	SharpeRatio               string   `yaml:"sharpe_ratio"`
	MaxDrawdown               string   `yaml:"max_drawdown"`
	MaxDrawdownPercent        string   `yaml:"max_drawdown_percent"`
	MaxDrawdownDays           int      `yaml:"max_drawdown_days"`
	AvgMonthlyTurnover        string   `yaml:"avg_monthly_turnover"`
	Rebalances                int      `yaml:"rebalances"`
	StopEvents                int      `yaml:"stop_events"`
	Blacklisted               []string `yaml:"blacklisted,omitempty"`
}

// WriteYAML writes the report summary as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	out := reportFile{
		RunID:                     r.RunID,
		Currency:                  r.Currency,
		StartDate:                 r.StartDate.Format(calendar.DateFormat),
		EndDate:                   r.EndDate.Format(calendar.DateFormat),
		TradingDays:               r.TradingDays,
		Benchmark:                 r.Benchmark,
		InitialValue:              r.InitialValue.StringFixed(2),
		FinalValue:                r.FinalValue.StringFixed(2),
		TotalReturn:               r.TotalReturn.StringFixed(6),
		AnnualizedReturn:          r.AnnualizedReturn.StringFixed(6),
		BenchmarkAnnualizedReturn: r.BenchmarkAnnualizedReturn.StringFixed(6),
		RelativeAnnualizedReturn:  r.RelativeAnnualizedReturn.StringFixed(6),
		InformationRatio:          r.InformationRatio.StringFixed(6),
		SharpeRatio:               r.SharpeRatio.StringFixed(6),
		MaxDrawdown:               r.MaxDrawdown.StringFixed(2),
		MaxDrawdownPercent:        r.MaxDrawdownPercent.StringFixed(6),
		MaxDrawdownDays:           r.MaxDrawdownDays,
		AvgMonthlyTurnover:        r.AvgMonthlyTurnover.StringFixed(6),
		Rebalances:                r.Rebalances,
		StopEvents:                r.StopEvents,
		Blacklisted:               r.Blacklisted,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}
