package orchestrator

import (
	"math"
	"sort"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

const (
	trendThreshold      = 5.0
	trendStrengthWindow = 20.0
)

// EstimateTrends classifies each KPI seen in at least two cycles from the
// mean cycle-over-cycle change relative to the mean value. Cycles are taken
// in period order regardless of submission order. It is a single pass
// heuristic, not a forecast.
func EstimateTrends(records []planning.GovernanceRecord) []planning.Trend {
	series := make(map[string][]float64)
	for _, rec := range planning.ByPeriodEnd(records) {
		for metric, k := range rec.KPIs {
			series[metric] = append(series[metric], k.Value)
		}
	}

	metrics := make([]string, 0, len(series))
	for m, values := range series {
		if len(values) >= 2 {
			metrics = append(metrics, m)
		}
	}
	sort.Strings(metrics)

	trends := make([]planning.Trend, 0, len(metrics))
	for _, m := range metrics {
		trends = append(trends, trendOf(m, series[m]))
	}
	return trends
}

func trendOf(metric string, values []float64) planning.Trend {
	var deltaSum, valueSum float64
	for i, v := range values {
		valueSum += v
		if i > 0 {
			deltaSum += v - values[i-1]
		}
	}
	meanDelta := deltaSum / float64(len(values)-1)
	meanValue := valueSum / float64(len(values))

	var pct float64
	if meanValue != 0 {
		pct = meanDelta / meanValue * 100
	}

	dir := planning.TrendStable
	switch {
	case pct > trendThreshold:
		dir = planning.TrendIncreasing
	case pct < -trendThreshold:
		dir = planning.TrendDecreasing
	}
	return planning.Trend{
		Metric:           metric,
		Direction:        dir,
		AvgChangePercent: pct,
		Strength:         math.Min(1, math.Abs(pct)/trendStrengthWindow),
		Cycles:           len(values),
	}
}
