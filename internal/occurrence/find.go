package occurrence

import (
	"github.com/multios/introspect/internal/stats"
	"github.com/multios/introspect/internal/trace"
)

// Find turns every anomaly in the report into an Occurrence for the session
// the report was computed from.
func Find(info trace.Info, report stats.Report) []Occurrence {
	occurrences := make([]Occurrence, 0, len(report.Anomalies))
	for _, a := range report.Anomalies {
		occurrences = append(occurrences, *NewOccurrence(info, a))
	}
	return occurrences
}
