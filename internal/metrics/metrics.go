// Package metrics exposes Prometheus indicators for strategy operations and keeper cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "strategyvault"

type Indicators interface {
	ObserveOperation(strategyID, operation string, err error, took time.Duration)
	SetTotalSupply(strategyID string, shares float64)
	SetUsdWorth(strategyID string, usd float64)
	ObserveYield(strategyID, source string, yieldFraction float64)
	IncrementCycles(outcome string)
	ObserveCycleDuration(took time.Duration)
}

type PromIndicators struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	totalSupply       *prometheus.GaugeVec
	usdWorth          *prometheus.GaugeVec
	lastYield         *prometheus.GaugeVec
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
}

var _ Indicators = (*PromIndicators)(nil)

func NewPromIndicators(reg prometheus.Registerer) *PromIndicators {
	return &PromIndicators{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "strategy",
				Name:      "operations_total",
				Help:      "strategy operations by type and outcome",
			},
			[]string{"strategy", "operation", "outcome"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "strategy",
				Name:      "operation_duration_seconds",
				Help:      "strategy operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy", "operation"},
		),
		totalSupply: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "strategy",
				Name:      "total_supply_shares",
				Help:      "shares in existence per strategy",
			},
			[]string{"strategy"},
		),
		usdWorth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "strategy",
				Name:      "usd_worth",
				Help:      "last measured position value in whole USD",
			},
			[]string{"strategy"},
		),
		lastYield: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "strategy",
				Name:      "last_yield_ratio",
				Help:      "last realized yield as a fraction of value",
			},
			[]string{"strategy", "source"},
		),
		cyclesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "cycles_total",
				Help:      "keeper cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "cycle_duration_seconds",
				Help:      "keeper cycle latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
	}
}

func (p *PromIndicators) ObserveOperation(strategyID, operation string, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.operationsTotal.WithLabelValues(strategyID, operation, outcome).Inc()
	p.operationDuration.WithLabelValues(strategyID, operation).Observe(took.Seconds())
}

func (p *PromIndicators) SetTotalSupply(strategyID string, shares float64) {
	p.totalSupply.WithLabelValues(strategyID).Set(shares)
}

func (p *PromIndicators) SetUsdWorth(strategyID string, usd float64) {
	p.usdWorth.WithLabelValues(strategyID).Set(usd)
}

func (p *PromIndicators) ObserveYield(strategyID, source string, yieldFraction float64) {
	p.lastYield.WithLabelValues(strategyID, source).Set(yieldFraction)
}

func (p *PromIndicators) IncrementCycles(outcome string) {
	p.cyclesTotal.WithLabelValues(outcome).Inc()
}

func (p *PromIndicators) ObserveCycleDuration(took time.Duration) {
	p.cycleDuration.Observe(took.Seconds())
}

// Noop discards everything.
type Noop struct{}

var _ Indicators = Noop{}

func (Noop) ObserveOperation(string, string, error, time.Duration) {}
func (Noop) SetTotalSupply(string, float64)                       {}
func (Noop) SetUsdWorth(string, float64)                          {}
func (Noop) ObserveYield(string, string, float64)                 {}
func (Noop) IncrementCycles(string)                               {}
func (Noop) ObserveCycleDuration(time.Duration)                   {}
