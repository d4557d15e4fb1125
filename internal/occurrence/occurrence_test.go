package occurrence

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	gojson "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/multios/introspect/internal/stats"
	"github.com/multios/introspect/internal/testutil"
	"github.com/multios/introspect/internal/timeutil"
	"github.com/multios/introspect/internal/trace"
)

func testSessionInfo() trace.Info {
	stoppedAt := timeutil.Time(time.Unix(1700000060, 0).UTC())
	return trace.Info{
		ID:         "aebcc2d1-0e86-4672-96ea-e8b4d9ad19e2",
		ProcessID:  4242,
		State:      trace.StateStopped,
		StartedAt:  timeutil.Time(time.Unix(1700000000, 0).UTC()),
		StoppedAt:  &stoppedAt,
		StopReason: trace.StopReasonRequest,
	}
}

func TestNewOccurrence(t *testing.T) {
	info := testSessionInfo()
	event := Event{
		ID:        "aebcc2d1-0e86-4672-96ea-e8b4d9ad19e2",
		ProcessID: 4242,
		Received:  time.Unix(1700000000, 0).UTC(),
		Tags: map[string]string{
			"process_id":  "4242",
			"session_id":  "aebcc2d1-0e86-4672-96ea-e8b4d9ad19e2",
			"stop_reason": "request",
		},
		Timestamp: time.Unix(1700000060, 0).UTC(),
	}

	tests := []struct {
		name    string
		anomaly stats.Anomaly
		want    Occurrence
	}{
		{
			name: "suspicious syscall",
			anomaly: stats.Anomaly{
				Kind:  stats.AnomalySuspiciousSyscall,
				Name:  "ptrace",
				Count: 3,
				Risk:  stats.RiskHigh,
			},
			want: Occurrence{
				Event: event,
				EvidenceData: map[string]interface{}{
					"call_count": uint64(3),
					"risk":       stats.RiskHigh,
					"syscall":    "ptrace",
				},
				EvidenceDisplay: []Evidence{
					{Name: EvidenceNameSyscall, Value: "ptrace", Important: true},
					{Name: EvidenceNameRisk, Value: "high"},
					{Name: EvidenceNameCallCount, Value: "3"},
				},
				IssueTitle: "Suspicious Syscall Activity",
				Level:      "error",
				Subtitle:   "ptrace called 3 times",
				Type:       SuspiciousSyscallType,
				kind:       stats.AnomalySuspiciousSyscall,
				risk:       stats.RiskHigh,
				name:       "ptrace",
				count:      3,
			},
		},
		{
			name: "slow syscall",
			anomaly: stats.Anomaly{
				Kind:       stats.AnomalySlowSyscall,
				Name:       "openat",
				EventID:    12,
				DurationNS: 2500000,
			},
			want: Occurrence{
				Event: event,
				EvidenceData: map[string]interface{}{
					"duration_ns": uint64(2500000),
					"event_id":    uint64(12),
					"syscall":     "openat",
				},
				EvidenceDisplay: []Evidence{
					{Name: EvidenceNameSyscall, Value: "openat", Important: true},
					{Name: EvidenceNameDuration, Value: "2.5ms"},
				},
				IssueTitle: "Slow Syscall",
				Level:      "info",
				Subtitle:   "openat took 2.5ms",
				Type:       SlowSyscallType,
				kind:       stats.AnomalySlowSyscall,
				name:       "openat",
				durationNS: 2500000,
			},
		},
		{
			name: "high error rate",
			anomaly: stats.Anomaly{
				Kind:  stats.AnomalyHighErrorRate,
				Count: 30,
				Rate:  0.3,
			},
			want: Occurrence{
				Event: event,
				EvidenceData: map[string]interface{}{
					"error_count": uint64(30),
					"error_rate":  0.3,
				},
				EvidenceDisplay: []Evidence{
					{Name: EvidenceNameErrorRate, Value: "30.00%", Important: true},
					{Name: EvidenceNameErrors, Value: "30"},
				},
				IssueTitle: "High Syscall Error Rate",
				Level:      "info",
				Subtitle:   "30.00% of syscalls failed",
				Type:       HighErrorRateType,
				kind:       stats.AnomalyHighErrorRate,
				count:      30,
			},
		},
		{
			name: "unknown kind",
			anomaly: stats.Anomaly{
				Kind:  stats.AnomalyKind("spin_loop"),
				Name:  "poll",
				Count: 7,
			},
			want: Occurrence{
				Event: event,
				EvidenceData: map[string]interface{}{
					"call_count": uint64(7),
					"risk":       stats.RiskLevel(""),
					"syscall":    "poll",
				},
				EvidenceDisplay: []Evidence{
					{Name: EvidenceNameSyscall, Value: "poll", Important: true},
					{Name: EvidenceNameRisk, Value: ""},
					{Name: EvidenceNameCallCount, Value: "7"},
				},
				IssueTitle: "spin_loop anomaly detected",
				Level:      "info",
				Subtitle:   "poll called 7 times",
				Type:       NoneType,
				kind:       stats.AnomalyKind("spin_loop"),
				name:       "poll",
				count:      7,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewOccurrence(info, tt.anomaly)
			if len(got.ID) != 32 || strings.Contains(got.ID, "-") {
				t.Fatalf("unexpected occurrence ID: %q", got.ID)
			}
			if len(got.Fingerprint) != 32 {
				t.Fatalf("unexpected fingerprint: %q", got.Fingerprint)
			}
			if got.DetectionTime.IsZero() {
				t.Fatal("detection time not set")
			}
			got.ID = ""
			got.Fingerprint = ""
			got.DetectionTime = time.Time{}
			if diff := testutil.Diff(*got, tt.want, cmp.AllowUnexported(Occurrence{})); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestFind(t *testing.T) {
	info := testSessionInfo()
	report := stats.Report{
		Anomalies: []stats.Anomaly{
			{Kind: stats.AnomalySuspiciousSyscall, Name: "ptrace", Count: 1, Risk: stats.RiskHigh},
			{Kind: stats.AnomalySlowSyscall, Name: "openat", EventID: 12, DurationNS: 2500000},
			{Kind: stats.AnomalyHighErrorRate, Count: 30, Rate: 0.3},
		},
	}

	occurrences := Find(info, report)
	if len(occurrences) != len(report.Anomalies) {
		t.Fatalf("expected %d occurrences, got %d", len(report.Anomalies), len(occurrences))
	}
	titles := make([]IssueTitle, 0, len(occurrences))
	fingerprints := make(map[string]struct{})
	for _, o := range occurrences {
		titles = append(titles, o.IssueTitle)
		fingerprints[o.Fingerprint] = struct{}{}
	}
	wantTitles := []IssueTitle{"Suspicious Syscall Activity", "Slow Syscall", "High Syscall Error Rate"}
	if diff := testutil.Diff(titles, wantTitles); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if len(fingerprints) != len(occurrences) {
		t.Fatalf("expected one fingerprint per anomaly, got %d", len(fingerprints))
	}

	// The same anomaly in a later session of the same process maps to the
	// same issue, under a fresh occurrence ID.
	laterSession := info
	laterSession.ID = "0c2c90ba-c1cd-4d9c-9c3c-2e9ec9adb51f"
	o := NewOccurrence(laterSession, report.Anomalies[0])
	if o.Fingerprint != occurrences[0].Fingerprint {
		t.Fatalf("fingerprint changed across sessions: %q != %q", o.Fingerprint, occurrences[0].Fingerprint)
	}
	if o.ID == occurrences[0].ID {
		t.Fatalf("occurrence ID reused: %q", o.ID)
	}
}

func TestGenerateKafkaMessageBatch(t *testing.T) {
	info := testSessionInfo()
	report := stats.Report{
		Anomalies: []stats.Anomaly{
			{Kind: stats.AnomalySuspiciousSyscall, Name: "execve", Count: 2, Risk: stats.RiskMedium},
			{Kind: stats.AnomalyHighErrorRate, Count: 12, Rate: 0.12},
		},
	}
	occurrences := Find(info, report)

	messages, err := GenerateKafkaMessageBatch(occurrences)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != len(occurrences) {
		t.Fatalf("expected %d messages, got %d", len(occurrences), len(messages))
	}
	for i, m := range messages {
		if string(m.Key) != occurrences[i].Fingerprint {
			t.Fatalf("message %d keyed by %q, want fingerprint %q", i, m.Key, occurrences[i].Fingerprint)
		}
		var decoded Occurrence
		if err := gojson.Unmarshal(m.Value, &decoded); err != nil {
			t.Fatalf("message %d does not decode: %v", i, err)
		}
		if decoded.IssueTitle != occurrences[i].IssueTitle {
			t.Fatalf("message %d carries title %q, want %q", i, decoded.IssueTitle, occurrences[i].IssueTitle)
		}
	}
}

func TestOccurrenceSave(t *testing.T) {
	info := testSessionInfo()
	o := NewOccurrence(info, stats.Anomaly{
		Kind:  stats.AnomalySuspiciousSyscall,
		Name:  "setuid",
		Count: 4,
		Risk:  stats.RiskHigh,
	})

	row, insertID, err := o.Save()
	if err != nil {
		t.Fatal(err)
	}
	if insertID != bigquery.NoDedupeID {
		t.Fatalf("expected insert ID %q, got %q", bigquery.NoDedupeID, insertID)
	}
	want := map[string]bigquery.Value{
		"call_count":  4,
		"detected_at": o.DetectionTime,
		"duration_ns": 0,
		"kind":        stats.AnomalySuspiciousSyscall,
		"process_id":  "4242",
		"risk":        stats.RiskHigh,
		"session_id":  "aebcc2d1-0e86-4672-96ea-e8b4d9ad19e2",
		"syscall":     "setuid",
	}
	if diff := testutil.Diff(row, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
