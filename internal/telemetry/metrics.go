// Package telemetry carries the run's Prometheus metrics and log setup.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports rebalance, stop and valuation metrics of a backtest run.
type Recorder struct {
	Rebalances *prometheus.CounterVec
	Stops      *prometheus.CounterVec
	Turnover   prometheus.Histogram
	TotalValue prometheus.Gauge
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorlab_rebalances_total",
				Help: "Number of rebalances by trigger",
			},
			[]string{"trigger"},
		),
		Stops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorlab_stop_events_total",
				Help: "Number of stop-gain and stop-loss events",
			},
			[]string{"kind"},
		),
		Turnover: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "factorlab_rebalance_turnover",
				Help:    "Sum of absolute weight changes per rebalance",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 1.5, 2.0},
			},
		),
		TotalValue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "factorlab_portfolio_total_value",
				Help: "Portfolio total value at the latest simulated day",
			},
		),
	}
}

func (r *Recorder) ObserveRebalance(trigger string, turnover float64) {
	r.Rebalances.WithLabelValues(trigger).Inc()
	r.Turnover.Observe(turnover)
}

func (r *Recorder) ObserveStop(kind string) {
	r.Stops.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetTotalValue(value float64) {
	r.TotalValue.Set(value)
}

// WriteTextfile dumps the gathered metrics in the text exposition format, for the
// node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
