package trace

import (
	"github.com/multios/introspect/internal/timeutil"
)

// Event is one captured syscall invocation. Events are immutable once
// appended to a session; their delivery order is the authoritative order
// for statistics.
type Event struct {
	ID         uint64        `json:"id"`
	Name       string        `json:"name"`
	Timestamp  timeutil.Time `json:"timestamp"`
	Parameters []string      `json:"parameters,omitempty"`
	Result     int64         `json:"result"`
	DurationNS uint64        `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Failed reports whether the syscall returned an error.
func (e Event) Failed() bool {
	return e.Error != ""
}
