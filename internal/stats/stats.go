package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/multios/introspect/internal/quantile"
	"github.com/multios/introspect/internal/timeutil"
	"github.com/multios/introspect/internal/trace"
)

type (
	// Report is the full statistical picture of one event window. It is
	// derived on demand and never stored.
	Report struct {
		TotalCalls      uint64        `json:"total_calls"`
		UniqueCalls     int           `json:"unique_calls"`
		ErrorCount      uint64        `json:"error_count"`
		ErrorRate       float64       `json:"error_rate"`
		TotalDurationNS uint64        `json:"total_duration_ns"`
		AvgDurationNS   float64       `json:"avg_duration_ns"`
		DurationsNS     Quantiles     `json:"durations_ns"`
		ByFrequency     []NameCount   `json:"top_by_frequency,omitempty"`
		Slowest         []SlowCall    `json:"top_by_slowest,omitempty"`
		Calls           []CallMetrics `json:"calls,omitempty"`
		Patterns        []Pattern     `json:"patterns,omitempty"`
		Anomalies       []Anomaly     `json:"anomalies,omitempty"`
		Recommendations []string      `json:"recommendations,omitempty"`
	}

	// Quantiles is the duration distribution of the whole window.
	Quantiles struct {
		P50 float64 `json:"p50"`
		P75 float64 `json:"p75"`
		P90 float64 `json:"p90"`
		P95 float64 `json:"p95"`
		P99 float64 `json:"p99"`
	}

	NameCount struct {
		Name  string `json:"name"`
		Count uint64 `json:"count"`
	}

	// SlowCall identifies one slow syscall invocation.
	SlowCall struct {
		EventID    uint64        `json:"event_id"`
		Name       string        `json:"name"`
		DurationNS uint64        `json:"duration_ns"`
		Timestamp  timeutil.Time `json:"timestamp"`
		Error      string        `json:"error,omitempty"`
	}

	// CallMetrics aggregates every invocation of one syscall.
	CallMetrics struct {
		Name       string  `json:"name"`
		Count      uint64  `json:"count"`
		ErrorCount uint64  `json:"error_count"`
		Sum        uint64  `json:"sum"`
		Avg        float64 `json:"avg"`
		P75        uint64  `json:"p75"`
		P95        uint64  `json:"p95"`
		P99        uint64  `json:"p99"`
		Worst      uint64  `json:"worst"`
	}

	callAccumulator struct {
		durations  []uint64
		sum        uint64
		count      uint64
		errorCount uint64
		maxVal     uint64
		worstID    uint64
	}
)

// Analyze runs the complete analysis over one event window: aggregate
// statistics, trailing-window patterns, anomalies and the recommendations
// derived from all of it.
func Analyze(events []trace.Event, opts Options) Report {
	opts = opts.withDefaults()
	report := Aggregate(events, opts)
	report.Patterns = DetectPatterns(events, opts)
	report.Anomalies = DetectAnomalies(events, report, opts)
	report.Recommendations = Recommendations(report)
	return report
}

// Aggregate computes the statistical part of the report. An empty window
// yields an all-zero report, not an error.
func Aggregate(events []trace.Event, opts Options) Report {
	opts = opts.withDefaults()
	report := Report{TotalCalls: uint64(len(events))}
	if len(events) == 0 {
		return report
	}

	calls := make(map[string]*callAccumulator)
	durations := quantile.Quantile{Xs: make([]float64, 0, len(events))}
	for _, e := range events {
		acc, ok := calls[e.Name]
		if !ok {
			acc = &callAccumulator{maxVal: e.DurationNS, worstID: e.ID}
			calls[e.Name] = acc
		} else if e.DurationNS > acc.maxVal {
			acc.maxVal = e.DurationNS
			acc.worstID = e.ID
		}
		acc.durations = append(acc.durations, e.DurationNS)
		acc.sum += e.DurationNS
		acc.count++
		if e.Failed() {
			acc.errorCount++
			report.ErrorCount++
		}
		report.TotalDurationNS += e.DurationNS
		durations.Add(float64(e.DurationNS))
	}
	report.UniqueCalls = len(calls)
	report.ErrorRate = float64(report.ErrorCount) / float64(report.TotalCalls)
	report.AvgDurationNS = float64(report.TotalDurationNS) / float64(report.TotalCalls)
	report.DurationsNS = quantileToQuantiles(durations)
	report.ByFrequency = topByFrequency(calls, opts.TopN)
	report.Slowest = topBySlowest(events, opts.TopN)
	report.Calls = toCallMetrics(calls, opts.MaxUniqueCalls)
	return report
}

func quantileToQuantiles(q quantile.Quantile) Quantiles {
	q.Sort()
	return Quantiles{
		P50: q.Percentile(0.50),
		P75: q.Percentile(0.75),
		P90: q.Percentile(0.90),
		P95: q.Percentile(0.95),
		P99: q.Percentile(0.99),
	}
}

func topByFrequency(calls map[string]*callAccumulator, n int) []NameCount {
	counts := make([]NameCount, 0, len(calls))
	for name, acc := range calls {
		counts = append(counts, NameCount{Name: name, Count: acc.count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count == counts[j].Count {
			return counts[i].Name < counts[j].Name
		}
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// topBySlowest ranks individual invocations by duration. Ties go to the
// earlier event so the ranking is stable across runs.
func topBySlowest(events []trace.Event, n int) []SlowCall {
	sorted := make([]trace.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DurationNS == sorted[j].DurationNS {
			ti, tj := sorted[i].Timestamp.Time(), sorted[j].Timestamp.Time()
			if ti.Equal(tj) {
				return sorted[i].ID < sorted[j].ID
			}
			return ti.Before(tj)
		}
		return sorted[i].DurationNS > sorted[j].DurationNS
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	slowest := make([]SlowCall, 0, len(sorted))
	for _, e := range sorted {
		slowest = append(slowest, SlowCall{
			EventID:    e.ID,
			Name:       e.Name,
			DurationNS: e.DurationNS,
			Timestamp:  e.Timestamp,
			Error:      e.Error,
		})
	}
	return slowest
}

func toCallMetrics(calls map[string]*callAccumulator, maxUniqueCalls int) []CallMetrics {
	metrics := make([]CallMetrics, 0, len(calls))
	for name, acc := range calls {
		sort.Slice(acc.durations, func(i, j int) bool {
			return acc.durations[i] < acc.durations[j]
		})
		p75, _ := percentile(acc.durations, 0.75)
		p95, _ := percentile(acc.durations, 0.95)
		p99, _ := percentile(acc.durations, 0.99)
		metrics = append(metrics, CallMetrics{
			Name:       name,
			Count:      acc.count,
			ErrorCount: acc.errorCount,
			Sum:        acc.sum,
			Avg:        float64(acc.sum) / float64(acc.count),
			P75:        p75,
			P95:        p95,
			P99:        p99,
			Worst:      acc.worstID,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum == metrics[j].Sum {
			return metrics[i].Name < metrics[j].Name
		}
		return metrics[i].Sum > metrics[j].Sum
	})
	if len(metrics) > maxUniqueCalls {
		metrics = metrics[:maxUniqueCalls]
	}
	return metrics
}

func percentile(values []uint64, q float64) (uint64, error) {
	if len(values) == 0 {
		return 0, errors.New("cannot compute percentile from empty list")
	}
	if q <= 0 || q > 1 {
		return 0, errors.New("q must be a value between 0 and 1.0")
	}
	index := int(math.Ceil(float64(len(values))*q)) - 1
	return values[index], nil
}
