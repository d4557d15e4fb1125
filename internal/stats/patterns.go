package stats

import (
	"sort"

	"github.com/multios/introspect/internal/trace"
)

type (
	PatternKind string

	// Pattern flags recurring behavior in the trailing window of the event
	// stream, as opposed to anomalies, which flag individual observations.
	Pattern struct {
		Kind   PatternKind `json:"kind"`
		Name   string      `json:"name,omitempty"`
		Count  int         `json:"count"`
		Window int         `json:"window"`
	}
)

const (
	PatternHighFrequency PatternKind = "high_frequency"
	PatternErrorBurst    PatternKind = "error_burst"
)

// DetectPatterns inspects the trailing windows of the stream: a syscall
// called more than FrequencyThreshold times within the last FrequencyWindow
// events is flagged as high frequency, and more than ErrorBurstThreshold
// failures within the last ErrorBurstWindow events as an error burst.
func DetectPatterns(events []trace.Event, opts Options) []Pattern {
	opts = opts.withDefaults()
	var patterns []Pattern

	window := tail(events, opts.FrequencyWindow)
	counts := make(map[string]int)
	for _, e := range window {
		counts[e.Name]++
	}
	var frequent []Pattern
	for name, count := range counts {
		if count > opts.FrequencyThreshold {
			frequent = append(frequent, Pattern{
				Kind:   PatternHighFrequency,
				Name:   name,
				Count:  count,
				Window: opts.FrequencyWindow,
			})
		}
	}
	sort.Slice(frequent, func(i, j int) bool {
		if frequent[i].Count == frequent[j].Count {
			return frequent[i].Name < frequent[j].Name
		}
		return frequent[i].Count > frequent[j].Count
	})
	patterns = append(patterns, frequent...)

	window = tail(events, opts.ErrorBurstWindow)
	var failures int
	for _, e := range window {
		if e.Failed() {
			failures++
		}
	}
	if failures > opts.ErrorBurstThreshold {
		patterns = append(patterns, Pattern{
			Kind:   PatternErrorBurst,
			Count:  failures,
			Window: opts.ErrorBurstWindow,
		})
	}
	return patterns
}

func tail(events []trace.Event, n int) []trace.Event {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
