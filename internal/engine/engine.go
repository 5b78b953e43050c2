package engine

import (
	"errors"
	"io"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoBlacklist is returned when a run is wired without the shared blacklist.
var ErrNoBlacklist = errors.New("blacklist is required")

type Engine struct {
	runID           string
	portfolio       *Portfolio
	blacklist       *types.Blacklist
	reportingConfig *ReportingConfig
	backtester      *backtester
	log             zerolog.Logger
}

type options struct {
	logger   zerolog.Logger
	metrics  MetricsRecorder
	progress io.Writer
	runID    string
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(recorder MetricsRecorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithProgress sets where the progress bar is drawn. Defaults to io.Discard.
func WithProgress(w io.Writer) Option {
	return func(o *options) { o.progress = w }
}

func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// NewEngine wires one backtest run. The blacklist must be the one the strategy
// appends to, so that stopped-out securities leave future targets.
func NewEngine(
	cal *calendar.Calendar,
	market ReturnSource,
	factor PositionSource,
	strat OrderPolicy,
	blacklist *types.Blacklist,
	portfolioConfig *PortfolioConfig,
	rebalanceConfig *RebalanceConfig,
	reportingConfig *ReportingConfig,
	opts ...Option,
) *Engine {
	o := options{
		logger:   zerolog.Nop(),
		metrics:  noopMetrics{},
		progress: io.Discard,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("run_id", o.runID).Logger()

	portfolio := NewPortfolio(portfolioConfig, cal)
	rebalancer := NewRebalancer(rebalanceConfig, portfolio, factor, blacklist, logger)
	return &Engine{
		runID:           o.runID,
		portfolio:       portfolio,
		blacklist:       blacklist,
		reportingConfig: reportingConfig,
		backtester:      newBacktester(portfolio, market, factor, strat, rebalancer, o.metrics, logger, o.progress),
		log:             logger,
	}
}

func (e *Engine) Run() error {
	if e.blacklist == nil {
		return ErrNoBlacklist
	}
	e.log.Info().
		Str("start", e.portfolio.Date(0).Format(calendar.DateFormat)).
		Str("end", e.portfolio.Date(e.portfolio.Len()-1).Format(calendar.DateFormat)).
		Int("trading_days", e.portfolio.Len()).
		Msg("starting backtest")

	if err := e.backtester.run(); err != nil {
		e.log.Error().Err(err).Msg("backtest failed")
		return err
	}

	last := e.portfolio.Len() - 1
	e.log.Info().
		Str("total_value", e.portfolio.TotalValue(last).StringFixed(2)).
		Int("rebalances", e.backtester.rebalances).
		Int("stops", e.backtester.stops).
		Msg("backtest finished")
	return nil
}

func (e *Engine) RunID() string { return e.runID }

// Portfolio returns the ledger. It is read-only once Run returns without error.
func (e *Engine) Portfolio() *Portfolio { return e.portfolio }

func (e *Engine) Blacklist() []types.Security { return e.blacklist.List() }

func (e *Engine) Rebalances() int { return e.backtester.rebalances }

func (e *Engine) Stops() int { return e.backtester.stops }
