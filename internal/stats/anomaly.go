package stats

import (
	"sort"

	"github.com/multios/introspect/internal/trace"
)

type (
	AnomalyKind string
	RiskLevel   string

	// Anomaly flags one noteworthy observation in the event window.
	Anomaly struct {
		Kind       AnomalyKind `json:"kind"`
		Name       string      `json:"name,omitempty"`
		EventID    uint64      `json:"event_id,omitempty"`
		DurationNS uint64      `json:"duration_ns,omitempty"`
		Count      uint64      `json:"count,omitempty"`
		Rate       float64     `json:"rate,omitempty"`
		Risk       RiskLevel   `json:"risk,omitempty"`
	}
)

const (
	AnomalySuspiciousSyscall AnomalyKind = "suspicious_syscall"
	AnomalySlowSyscall       AnomalyKind = "slow_syscall"
	AnomalyHighErrorRate     AnomalyKind = "high_error_rate"

	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// syscallRisk is the static risk classification of syscalls worth flagging
// when they show up in a trace at all, whatever their frequency.
var syscallRisk = map[string]RiskLevel{
	"ptrace":            RiskHigh,
	"process_vm_readv":  RiskHigh,
	"process_vm_writev": RiskHigh,
	"setuid":            RiskHigh,
	"execve":            RiskMedium,
	"execveat":          RiskMedium,
	"kill":              RiskMedium,
	"memfd_create":      RiskMedium,
	"mprotect":          RiskMedium,
	"chmod":             RiskLow,
	"clone":             RiskLow,
	"connect":           RiskLow,
	"fork":              RiskLow,
	"socket":            RiskLow,
	"unlink":            RiskLow,
}

var riskOrder = map[RiskLevel]int{
	RiskHigh:   0,
	RiskMedium: 1,
	RiskLow:    2,
}

// RiskFor returns the static risk classification of a syscall. Names outside
// the table default to low: a client watching a custom syscall still gets a
// report entry for it.
func RiskFor(name string) RiskLevel {
	if risk, ok := syscallRisk[name]; ok {
		return risk
	}
	return RiskLow
}

func watchedSyscalls() []string {
	names := make([]string, 0, len(syscallRisk))
	for name := range syscallRisk {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectAnomalies flags suspicious syscalls (ordered by descending risk),
// slow invocations (in stream order) and, last, an overall error rate above
// the threshold. The report must come from Aggregate over the same window.
func DetectAnomalies(events []trace.Event, report Report, opts Options) []Anomaly {
	opts = opts.withDefaults()
	var anomalies []Anomaly

	watched := make(map[string]struct{}, len(opts.SuspiciousSyscalls))
	for _, name := range opts.SuspiciousSyscalls {
		watched[name] = struct{}{}
	}
	counts := make(map[string]uint64)
	for _, e := range events {
		if _, ok := watched[e.Name]; ok {
			counts[e.Name]++
		}
	}
	suspicious := make([]Anomaly, 0, len(counts))
	for name, count := range counts {
		suspicious = append(suspicious, Anomaly{
			Kind:  AnomalySuspiciousSyscall,
			Name:  name,
			Count: count,
			Risk:  RiskFor(name),
		})
	}
	sort.Slice(suspicious, func(i, j int) bool {
		if riskOrder[suspicious[i].Risk] == riskOrder[suspicious[j].Risk] {
			return suspicious[i].Name < suspicious[j].Name
		}
		return riskOrder[suspicious[i].Risk] < riskOrder[suspicious[j].Risk]
	})
	anomalies = append(anomalies, suspicious...)

	for _, e := range events {
		if e.DurationNS > opts.SlowThresholdNS {
			anomalies = append(anomalies, Anomaly{
				Kind:       AnomalySlowSyscall,
				Name:       e.Name,
				EventID:    e.ID,
				DurationNS: e.DurationNS,
			})
		}
	}

	if report.ErrorRate > opts.HighErrorRate {
		anomalies = append(anomalies, Anomaly{
			Kind:  AnomalyHighErrorRate,
			Count: report.ErrorCount,
			Rate:  report.ErrorRate,
		})
	}
	return anomalies
}
