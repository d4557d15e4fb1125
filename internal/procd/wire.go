package procd

import (
	"github.com/multios/introspect/internal/memory"
	"github.com/multios/introspect/internal/timeutil"
	"github.com/multios/introspect/internal/trace"
	"github.com/multios/introspect/internal/types"
)

const regionStateUsed = "used"

type (
	// wireEvent is one syscall record in the daemon's format. Timestamps
	// arrive as integer Unix nanoseconds.
	wireEvent struct {
		Name        string        `json:"name"`
		Timestamp   timeutil.Time `json:"timestamp"`
		Args        []string      `json:"args,omitempty"`
		ReturnValue int64         `json:"return_value"`
		DurationNS  uint64        `json:"duration_ns"`
		Errno       string        `json:"errno,omitempty"`
	}

	// wireRegion is one memory mapping in the daemon's format. The daemon
	// reports occupancy as a state string, "used" or "free", and address
	// values as either numbers or decimal strings.
	wireRegion struct {
		BaseAddress types.Uint64 `json:"base_address"`
		Size        types.Uint64 `json:"size"`
		State       string       `json:"state"`
		Protection  string       `json:"protection,omitempty"`
		Kind        string       `json:"kind,omitempty"`
		Label       string       `json:"label,omitempty"`
	}
)

func (w wireEvent) event() trace.Event {
	return trace.Event{
		Name:       w.Name,
		Timestamp:  w.Timestamp,
		Parameters: w.Args,
		Result:     w.ReturnValue,
		DurationNS: w.DurationNS,
		Error:      w.Errno,
	}
}

func (w wireRegion) region() memory.Region {
	return memory.Region{
		BaseAddress:    uint64(w.BaseAddress),
		Size:           uint64(w.Size),
		Used:           w.State == regionStateUsed,
		Protection:     w.Protection,
		AllocationKind: w.Kind,
		Label:          w.Label,
	}
}
