package stats

import (
	"testing"

	"github.com/multios/introspect/internal/testutil"
)

func TestRecommendationsEmptyWindow(t *testing.T) {
	if got := Recommendations(Report{}); got != nil {
		t.Fatalf("expected no recommendations for an empty window, got %v", got)
	}
}

func TestRecommendationsHealthy(t *testing.T) {
	report := Report{TotalCalls: 12, UniqueCalls: 3, AvgDurationNS: 500}
	want := []string{"No anomalies detected: syscall activity looks healthy."}
	if diff := testutil.Diff(Recommendations(report), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestRecommendations(t *testing.T) {
	report := Report{
		TotalCalls:    20,
		ErrorCount:    5,
		ErrorRate:     0.25,
		AvgDurationNS: 2000000,
		Patterns: []Pattern{
			{Kind: PatternHighFrequency, Name: "read", Count: 5, Window: 20},
			{Kind: PatternErrorBurst, Count: 7, Window: 50},
		},
		Anomalies: []Anomaly{
			{Kind: AnomalySuspiciousSyscall, Name: "ptrace", Count: 2, Risk: RiskHigh},
			{Kind: AnomalySuspiciousSyscall, Name: "fork", Count: 1, Risk: RiskLow},
			{Kind: AnomalySlowSyscall, Name: "read", EventID: 7, DurationNS: 2000000},
			{Kind: AnomalySlowSyscall, Name: "write", EventID: 9, DurationNS: 3000000},
			{Kind: AnomalyHighErrorRate, Count: 5, Rate: 0.25},
		},
	}

	want := []string{
		"High-risk syscalls observed (ptrace): review the process for tracing or injection activity.",
		"25.0% of calls failed (5 of 20): inspect the most frequent failing syscalls.",
		"2 calls ran longer than expected: profile the I/O and IPC paths they touch.",
		"read was called 5 times within the last 20 events: consider batching or caching.",
		"7 failures within the last 50 events: the process may be stuck in a failing retry loop.",
		"The average call took 2.00ms: the process is likely blocked on its environment rather than CPU.",
	}
	if diff := testutil.Diff(Recommendations(report), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

// Recommendations must be derivable from the report alone, so running them
// twice over the same report always agrees.
func TestRecommendationsAgreeWithReport(t *testing.T) {
	report := Report{
		TotalCalls: 10,
		ErrorCount: 3,
		ErrorRate:  0.3,
		Anomalies: []Anomaly{
			{Kind: AnomalyHighErrorRate, Count: 3, Rate: 0.3},
		},
	}
	first := Recommendations(report)
	second := Recommendations(report)
	if diff := testutil.Diff(first, second); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
