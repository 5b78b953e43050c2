package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "factorlab"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("factorlab failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:           appName,
		Short:         "Backtest a security-selection factor against a benchmark",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./configs/factorlab.yaml or ./factorlab.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().String("source", "postgres", "market data source (postgres|csv)")
	root.PersistentFlags().String("csv-dir", "./data", "directory of the csv market data")
	root.PersistentFlags().String("start", "2023-01-01", "first backtest date (YYYY-MM-DD)")
	root.PersistentFlags().String("end", "2023-12-01", "last backtest date (YYYY-MM-DD)")
	mustBind(v, "log_level", root.PersistentFlags().Lookup("log-level"))
	mustBind(v, "data.source", root.PersistentFlags().Lookup("source"))
	mustBind(v, "data.csv_dir", root.PersistentFlags().Lookup("csv-dir"))
	mustBind(v, "backtest.start", root.PersistentFlags().Lookup("start"))
	mustBind(v, "backtest.end", root.PersistentFlags().Lookup("end"))

	root.AddCommand(newRunCmd(v, &configFile))
	root.AddCommand(newCalendarCmd(v, &configFile))
	root.AddCommand(newSecuritiesCmd(v, &configFile))

	zerolog.TimeFieldFormat = time.RFC3339
	return root
}
