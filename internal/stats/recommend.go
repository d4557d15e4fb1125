package stats

import (
	"fmt"
	"strings"
	"time"
)

// Recommendations derives advice from a finished report. It is a pure
// function of the report: it never goes back to the raw events, so the
// advice always agrees with the numbers the report shows.
func Recommendations(report Report) []string {
	if report.TotalCalls == 0 {
		return nil
	}

	var (
		recommendations []string
		slowCount       int
		highRisk        []string
		errorRate       *Anomaly
	)
	for i, a := range report.Anomalies {
		switch a.Kind {
		case AnomalySlowSyscall:
			slowCount++
		case AnomalySuspiciousSyscall:
			if a.Risk == RiskHigh {
				highRisk = append(highRisk, a.Name)
			}
		case AnomalyHighErrorRate:
			errorRate = &report.Anomalies[i]
		}
	}

	if len(highRisk) > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"High-risk syscalls observed (%s): review the process for tracing or injection activity.",
			strings.Join(highRisk, ", ")))
	}
	if errorRate != nil {
		recommendations = append(recommendations, fmt.Sprintf(
			"%.1f%% of calls failed (%d of %d): inspect the most frequent failing syscalls.",
			errorRate.Rate*100, report.ErrorCount, report.TotalCalls))
	}
	if slowCount > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d calls ran longer than expected: profile the I/O and IPC paths they touch.",
			slowCount))
	}
	for _, p := range report.Patterns {
		switch p.Kind {
		case PatternHighFrequency:
			recommendations = append(recommendations, fmt.Sprintf(
				"%s was called %d times within the last %d events: consider batching or caching.",
				p.Name, p.Count, p.Window))
		case PatternErrorBurst:
			recommendations = append(recommendations, fmt.Sprintf(
				"%d failures within the last %d events: the process may be stuck in a failing retry loop.",
				p.Count, p.Window))
		}
	}
	if report.AvgDurationNS > float64(time.Millisecond.Nanoseconds()) {
		recommendations = append(recommendations, fmt.Sprintf(
			"The average call took %.2fms: the process is likely blocked on its environment rather than CPU.",
			report.AvgDurationNS/1e6))
	}

	if len(recommendations) == 0 {
		recommendations = append(recommendations,
			"No anomalies detected: syscall activity looks healthy.")
	}
	return recommendations
}
