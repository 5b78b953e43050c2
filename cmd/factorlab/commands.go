package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"factorlab/factors/ranked"
	"factorlab/internal/calendar"
	"factorlab/internal/config"
	"factorlab/internal/engine"
	"factorlab/internal/repository"
	"factorlab/internal/telemetry"
	"factorlab/strategies/stopgainloss"
	"factorlab/types"

	"github.com/charmbracelet/glamour"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// marketStore is what both the postgres and the csv repositories serve.
type marketStore interface {
	GetMarketOpenDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
	GetDailyReturns(ctx context.Context, security types.Security, start, end time.Time) ([]types.DailyReturn, error)
	GetSecurity(ctx context.Context, id types.SecurityID) (types.Security, error)
	ListSecurities(ctx context.Context) ([]types.Security, error)
}

func newRunCmd(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest and write its reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, *configFile)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			return runBacktest(cmd.Context(), cfg, store, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().String("strategy", "stop_gain_loss", "order policy (stop_gain_loss|none)")
	cmd.Flags().Int("top-n", 3, "number of securities the factor holds")
	cmd.Flags().String("output-dir", "./reports", "directory for the yaml report and csv audit files")
	cmd.Flags().String("metrics-file", "", "write prometheus metrics in text format to this file")
	cmd.Flags().Bool("progress", true, "draw a progress bar on stderr")
	mustBind(v, "strategy.name", cmd.Flags().Lookup("strategy"))
	mustBind(v, "factor.top_n", cmd.Flags().Lookup("top-n"))
	mustBind(v, "reporting.output_dir", cmd.Flags().Lookup("output-dir"))
	mustBind(v, "reporting.metrics_file", cmd.Flags().Lookup("metrics-file"))
	mustBind(v, "reporting.progress", cmd.Flags().Lookup("progress"))
	return cmd
}

func newCalendarCmd(v *viper.Viper, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Print the trading dates of the backtest window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, *configFile)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			cal, err := engine.LoadCalendar(cmd.Context(), store, cfg.Backtest.StartDate, cfg.Backtest.EndDate)
			if err != nil {
				return err
			}
			for _, d := range cal.Dates() {
				fmt.Fprintln(cmd.OutOrStdout(), d.Format(calendar.DateFormat))
			}
			logger.Info().Int("trading_days", cal.Len()).Msg("calendar loaded")
			return nil
		},
	}
}

func newSecuritiesCmd(v *viper.Viper, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "securities",
		Short: "List the securities known to the data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, *configFile)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			securities, err := store.ListSecurities(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range securities {
				fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-10s %-24s %s\n", s.ID.Kind, s.ID.Symbol, s.Sector, s.Name)
			}
			return nil
		},
	}
}

func setup(v *viper.Viper, configFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log.Logger = logger
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (marketStore, func(), error) {
	switch cfg.Data.Source {
	case "csv":
		store, err := repository.NewCSVStore(cfg.Data.CSVDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug().Str("dir", cfg.Data.CSVDir).Msg("using csv market data")
		return store, func() {}, nil
	default:
		db, err := repository.NewDatabase(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Data.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
			logger.Info().Msg("database schema applied")
		}
		return db, db.Close, nil
	}
}

func runBacktest(ctx context.Context, cfg *config.Config, store marketStore, out io.Writer, logger zerolog.Logger) error {
	universe, err := cfg.Securities()
	if err != nil {
		return err
	}
	universe = describe(ctx, store, universe, logger)
	benchmark, err := cfg.Benchmark.Security()
	if err != nil {
		return err
	}

	btConfig := engine.NewBacktestConfig(cfg.Backtest.StartDate, cfg.Backtest.EndDate,
		time.Duration(cfg.Factor.LookbackDays)*24*time.Hour)
	cal, err := engine.LoadCalendar(ctx, store, btConfig.Start(), btConfig.End())
	if err != nil {
		return err
	}
	market, err := engine.LoadMarket(ctx, store, append(universe, benchmark), btConfig.HistoryStart(), btConfig.End(), logger)
	if err != nil {
		return err
	}

	var ranker ranked.Ranker = ranked.StaticRanker(universe)
	if cfg.Factor.Ranking == "momentum" {
		ranker = ranked.NewMomentumRanker(market, universe, cfg.Factor.LookbackDays)
	}
	factor, err := ranked.NewFactor(ranker, ranked.Direction(cfg.Factor.Direction), cfg.Factor.TopN)
	if err != nil {
		return err
	}

	blacklist := types.NewBlacklist()
	var strategy engine.OrderPolicy = stopgainloss.NoStrategy{}
	if cfg.Strategy.Name == "stop_gain_loss" {
		strategy = stopgainloss.New(decimal.NewFromFloat(cfg.Strategy.GainLimit), decimal.NewFromFloat(cfg.Strategy.LossLimit), blacklist)
	}

	rebalanceConfig, err := engine.NewRebalanceConfig(cfg.Rebalance.Period, types.Cadence(cfg.Rebalance.Interval),
		cfg.Rebalance.Disabled, decimal.NewFromFloat(cfg.Rebalance.RoundingBuffer))
	if err != nil {
		return err
	}
	reportingConfig := engine.NewReportingConfig(decimal.NewFromFloat(cfg.Reporting.RiskFreeRate), cfg.Backtest.Currency, cfg.Reporting.OutputDir)

	registry := prometheus.NewRegistry()
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(telemetry.NewRecorder(registry)),
	}
	if cfg.Reporting.Progress {
		opts = append(opts, engine.WithProgress(os.Stderr))
	}

	eng := engine.NewEngine(cal, market, factor, strategy, blacklist,
		engine.NewPortfolioConfig(decimal.NewFromFloat(cfg.Backtest.InitialCash), cfg.Backtest.Currency),
		rebalanceConfig,
		reportingConfig,
		opts...)
	if err := eng.Run(); err != nil {
		return err
	}

	report, err := eng.GenerateReport(engine.NewBenchmark(benchmark, market, cal))
	if err != nil {
		return err
	}
	rendered, err := glamour.Render(report.Markdown(), cfg.Reporting.Style)
	if err != nil {
		logger.Warn().Err(err).Str("style", cfg.Reporting.Style).Msg("render markdown")
		rendered = report.Markdown()
	}
	fmt.Fprint(out, rendered)

	return writeOutputs(eng, report, reportingConfig.OutputDir(), cfg.Reporting.MetricsFile, registry, logger)
}

// describe fills in names and sectors the data source knows about.
func describe(ctx context.Context, store marketStore, universe []types.Security, logger zerolog.Logger) []types.Security {
	described := make([]types.Security, 0, len(universe))
	for _, s := range universe {
		known, err := store.GetSecurity(ctx, s.ID)
		switch {
		case err == nil:
			s.Name = known.Name
			if s.Sector == "" {
				s.Sector = known.Sector
			}
		case errors.Is(err, repository.ErrSecurityNotFound):
			logger.Debug().Str("security", s.Display()).Msg("security not in data source")
		default:
			logger.Warn().Err(err).Str("security", s.Display()).Msg("look up security")
		}
		described = append(described, s)
	}
	return described
}

func writeOutputs(eng *engine.Engine, report *engine.Report, dir, metricsFile string, registry *prometheus.Registry, logger zerolog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	yamlPath := filepath.Join(dir, fmt.Sprintf("report-%s.yaml", eng.RunID()))
	f, err := os.Create(yamlPath)
	if err != nil {
		return err
	}
	if err := report.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	written, err := eng.WriteAuditFiles(dir)
	if err != nil {
		return err
	}
	written = append([]string{yamlPath}, written...)

	if metricsFile != "" {
		if err := telemetry.WriteTextfile(metricsFile, registry); err != nil {
			return err
		}
		written = append(written, metricsFile)
	}
	for _, path := range written {
		logger.Info().Str("path", path).Msg("report written")
	}
	return nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}
