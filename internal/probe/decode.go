package probe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/multios/introspect/internal/timeutil"
	"github.com/multios/introspect/internal/trace"
)

// flagProcessExit marks a record that reports the traced process's exit
// instead of a syscall.
const flagProcessExit = 1 << 0

const recordSize = 96

// record mirrors struct sc_event emitted by the kernel probe: fixed layout,
// little-endian, the six raw argument registers included.
type record struct {
	PID        uint64
	TimeNS     uint64
	DurationNS uint64
	Nr         uint64
	Ret        int64
	Args       [6]uint64
	Flags      uint64
}

func decodeRecord(raw []byte) (record, error) {
	var r record
	if len(raw) < recordSize {
		return r, fmt.Errorf("probe record too short: %d bytes", len(raw))
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &r); err != nil {
		return r, fmt.Errorf("decode probe record: %w", err)
	}
	return r, nil
}

func (r record) exit() bool {
	return r.Flags&flagProcessExit != 0
}

func (r record) event() trace.Event {
	e := trace.Event{
		Name:       syscallName(r.Nr),
		Timestamp:  timeutil.Time(time.Unix(0, int64(r.TimeNS))),
		Parameters: make([]string, 0, len(r.Args)),
		Result:     r.Ret,
		DurationNS: r.DurationNS,
	}
	for _, arg := range r.Args {
		e.Parameters = append(e.Parameters, fmt.Sprintf("%#x", arg))
	}
	// The kernel reports failures as return values in [-4095, -1].
	if r.Ret < 0 && r.Ret >= -4095 {
		e.Error = errnoName(-r.Ret)
	}
	return e
}
