/*

This file contains the performance analysis of a strategy from its realized yield history.

*/

package analyzer

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/elys-network/strategyvault/internal/types"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate returns (need at least 2 prices for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to analyze performance")

const year = 365 * 24 * time.Hour

// Performance summarizes a strategy's price-per-unit history.
type Performance struct {
	StrategyID           string    `json:"strategy_id"`
	Samples              int       `json:"samples"`
	From                 time.Time `json:"from"`
	To                   time.Time `json:"to"`
	CumulativeReturn     float64   `json:"cumulative_return"`
	AnnualizedReturn     float64   `json:"annualized_return"`
	AnnualizedVolatility float64   `json:"annualized_volatility"`
	MaxDrawdown          float64   `json:"max_drawdown"`
}

type pricePoint struct {
	at    time.Time
	price float64
}

// Analyze computes the performance of strategyID from its yield records. Only records carrying a
// positive reference price are used; order does not matter.
func Analyze(strategyID string, records []types.YieldRecord) (Performance, error) {
	points := make([]pricePoint, 0, len(records))
	for _, r := range records {
		if r.StrategyID != strategyID || r.ReferencePrice.IsNil() || !r.ReferencePrice.IsPositive() {
			continue
		}
		price, err := r.ReferencePrice.Float64()
		if err != nil {
			continue
		}
		points = append(points, pricePoint{at: r.Timestamp, price: price})
	}
	if len(points) < 2 {
		return Performance{}, ErrInsufficientData
	}
	sort.Slice(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

	first, last := points[0], points[len(points)-1]
	perf := Performance{
		StrategyID:       strategyID,
		Samples:          len(points),
		From:             first.at,
		To:               last.at,
		CumulativeReturn: last.price/first.price - 1,
		MaxDrawdown:      maxDrawdown(points),
	}

	span := last.at.Sub(first.at)
	if span <= 0 {
		return perf, nil
	}
	periodsPerYear := float64(year) / (float64(span) / float64(len(points)-1))
	perf.AnnualizedReturn = math.Pow(last.price/first.price, float64(year)/float64(span)) - 1

	vol, err := calculateVolatility(points, periodsPerYear)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return Performance{}, err
	}
	perf.AnnualizedVolatility = vol
	return perf, nil
}

// calculateVolatility calculates the annualized volatility of log returns between consecutive
// points, which must be sorted chronologically. annualizationFactor is the number of sampling
// periods in a year.
func calculateVolatility(points []pricePoint, annualizationFactor float64) (float64, error) {
	logReturns := make([]float64, 0, len(points))
	for i := 1; i < len(points); i++ {
		logReturns = append(logReturns, math.Log(points[i].price/points[i-1].price))
	}
	if len(logReturns) == 0 {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(len(logReturns))

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	// population standard deviation
	stdDev := math.Sqrt(sumSqDiff / float64(len(logReturns)))

	return stdDev * math.Sqrt(annualizationFactor), nil
}

// maxDrawdown is the largest peak-to-trough fall, as a positive fraction of the peak.
func maxDrawdown(points []pricePoint) float64 {
	peak, worst := points[0].price, 0.0
	for _, p := range points {
		if p.price > peak {
			peak = p.price
		}
		if dd := (peak - p.price) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
