package engine

import (
	"fmt"
	"io"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

const (
	triggerCadence = "cadence"
	triggerStop    = "stop"
)

type backtester struct {
	portfolio  *Portfolio
	market     ReturnSource
	factor     PositionSource
	strategy   OrderPolicy
	rebalancer *Rebalancer
	metrics    MetricsRecorder
	log        zerolog.Logger
	progress   io.Writer

	lastRebalanceIndex int
	rebalances         int
	stops              int
}

func newBacktester(portfolio *Portfolio, market ReturnSource, factor PositionSource, strat OrderPolicy, rebalancer *Rebalancer, metrics MetricsRecorder, logger zerolog.Logger, progress io.Writer) *backtester {
	return &backtester{
		portfolio:  portfolio,
		market:     market,
		factor:     factor,
		strategy:   strat,
		rebalancer: rebalancer,
		metrics:    metrics,
		log:        logger,
		progress:   progress,
	}
}

// run seeds index 0 from the factor, then advances one trading day at a time until
// the last calendar index and freezes the ledger. Any error aborts the run.
func (b *backtester) run() error {
	if err := b.factor.SetPortfolioAtStart(b.portfolio); err != nil {
		return fmt.Errorf("seed portfolio: %w", err)
	}
	if err := b.strategy.Init(b.portfolio); err != nil {
		return fmt.Errorf("init strategy: %w", err)
	}
	b.lastRebalanceIndex = 0
	b.metrics.SetTotalValue(b.portfolio.TotalValue(0).InexactFloat64())

	bar := initProgressBar(b.portfolio.Len()-1, b.progress)
	for index := 1; index < b.portfolio.Len(); index++ {
		if err := b.step(index); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	b.portfolio.Finish()
	return nil
}

// step advances the ledger to index. Marking to market always precedes the strategy
// and the rebalance so that both act on today's weights.
func (b *backtester) step(index int) error {
	on := b.portfolio.Date(index)

	for _, security := range b.portfolio.HoldSecurities(index - 1) {
		r, err := b.market.QueryReturn(security, on)
		if err != nil {
			return fmt.Errorf("query return %s on %s: %w", security, on.Format(calendar.DateFormat), err)
		}
		if err := b.portfolio.UpdateSecurityValue(security, index, r); err != nil {
			return err
		}
	}
	if err := b.portfolio.UpdatePortfolio(index); err != nil {
		return err
	}

	rebalanced := false
	for _, security := range b.portfolio.HoldSecurities(index) {
		order, err := b.strategy.GetOrder(security, index, b.lastRebalanceIndex)
		if err != nil {
			return fmt.Errorf("order for %s on %s: %w", security, on.Format(calendar.DateFormat), err)
		}

		switch order.Type {
		case types.OrderBuy:
			err = b.portfolio.AddSecurityWeight(order.Security, order.Weight, index)
		case types.OrderSell:
			err = b.portfolio.ReduceSecurityWeight(order.Security, order.Weight, index)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if !order.IsStop() {
			continue
		}

		b.stops++
		b.metrics.ObserveStop(string(order.Trigger))
		b.log.Info().
			Str("date", on.Format(calendar.DateFormat)).
			Str("security", order.Security.Display()).
			Str("trigger", string(order.Trigger)).
			Msg("stop order")

		// Holdings checked later today measure from this index.
		b.lastRebalanceIndex = index
		if !b.rebalancer.Disabled() {
			if err := b.rebalance(index, triggerStop); err != nil {
				return err
			}
			rebalanced = true
		}
		if err := b.portfolio.Revalue(index); err != nil {
			return err
		}
	}

	if !rebalanced {
		due, err := b.rebalancer.Due(index, b.lastRebalanceIndex)
		if err != nil {
			return err
		}
		if due {
			if err := b.rebalance(index, triggerCadence); err != nil {
				return err
			}
			b.lastRebalanceIndex = index
		}
	}

	b.metrics.SetTotalValue(b.portfolio.TotalValue(index).InexactFloat64())
	return nil
}

func (b *backtester) rebalance(index int, trigger string) error {
	turnover, err := b.rebalancer.Run(index)
	if err != nil {
		return err
	}
	b.rebalances++
	b.metrics.ObserveRebalance(trigger, turnover.InexactFloat64())
	return nil
}

func initProgressBar(maxTicks int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

type noopMetrics struct{}

func (noopMetrics) ObserveRebalance(string, float64) {}
func (noopMetrics) ObserveStop(string)               {}
func (noopMetrics) SetTotalValue(float64)            {}
