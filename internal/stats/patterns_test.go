package stats

import (
	"fmt"
	"testing"

	"github.com/multios/introspect/internal/testutil"
	"github.com/multios/introspect/internal/trace"
)

func TestDetectHighFrequency(t *testing.T) {
	// 4 reads and 3 opens in the trailing window; only the reads cross the
	// strict "more than 3" threshold.
	var events []trace.Event
	for i := 0; i < 4; i++ {
		events = append(events, trace.Event{Name: "read"})
	}
	for i := 0; i < 3; i++ {
		events = append(events, trace.Event{Name: "open"})
	}
	for i := 0; i < 13; i++ {
		events = append(events, trace.Event{Name: fmt.Sprintf("sys%d", i)})
	}

	patterns := DetectPatterns(events, Options{})
	want := []Pattern{
		{Kind: PatternHighFrequency, Name: "read", Count: 4, Window: DefaultFrequencyWindow},
	}
	if diff := testutil.Diff(patterns, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestDetectHighFrequencyWindowSlides(t *testing.T) {
	// 5 early writes fall out of the trailing window; the 2 recent ones are
	// not enough to flag.
	var events []trace.Event
	for i := 0; i < 5; i++ {
		events = append(events, trace.Event{Name: "write"})
	}
	for i := 0; i < 18; i++ {
		events = append(events, trace.Event{Name: fmt.Sprintf("sys%d", i)})
	}
	events = append(events, trace.Event{Name: "write"}, trace.Event{Name: "write"})

	patterns := DetectPatterns(events, Options{})
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns, got %+v", patterns)
	}
}

func TestDetectErrorBurst(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		trailing int
		want     []Pattern
	}{
		{
			name:     "six failures fire",
			failures: 6,
			want: []Pattern{
				{Kind: PatternErrorBurst, Count: 6, Window: DefaultErrorBurstWindow},
			},
		},
		{
			name:     "five failures are tolerated",
			failures: 5,
		},
		{
			name:     "failures outside the window do not count",
			failures: 6,
			trailing: 50,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var events []trace.Event
			for i := 0; i < test.failures; i++ {
				events = append(events, trace.Event{Name: "open", Error: "ENOENT"})
			}
			// Distinct filler names so the frequency detector stays quiet.
			for i := 0; i < 44+test.trailing; i++ {
				events = append(events, trace.Event{Name: fmt.Sprintf("sys%d", i)})
			}
			patterns := DetectPatterns(events, Options{})
			if diff := testutil.Diff(patterns, test.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestDetectPatternsCustomThresholds(t *testing.T) {
	events := []trace.Event{
		{Name: "read"},
		{Name: "write"},
		{Name: "read"},
	}
	patterns := DetectPatterns(events, Options{FrequencyWindow: 3, FrequencyThreshold: 1})
	want := []Pattern{
		{Kind: PatternHighFrequency, Name: "read", Count: 2, Window: 3},
	}
	if diff := testutil.Diff(patterns, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
