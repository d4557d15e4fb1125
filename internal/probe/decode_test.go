package probe

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/multios/introspect/internal/testutil"
	"github.com/multios/introspect/internal/timeutil"
	"github.com/multios/introspect/internal/trace"
)

func encodeRecord(t *testing.T, r record) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeRecord(t *testing.T) {
	in := record{
		PID:        42,
		TimeNS:     1700000000000000000,
		DurationNS: 5300,
		Nr:         257,
		Ret:        3,
		Args:       [6]uint64{0xffffff9c, 0x7ffd8000, 0, 0, 0, 0},
	}
	raw := encodeRecord(t, in)
	if len(raw) != recordSize {
		t.Fatalf("expected %d encoded bytes, got %d", recordSize, len(raw))
	}

	got, err := decodeRecord(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := testutil.Diff(got, in); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestDecodeRecordTooShort(t *testing.T) {
	if _, err := decodeRecord(make([]byte, 24)); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRecordEvent(t *testing.T) {
	tests := []struct {
		name string
		in   record
		want trace.Event
	}{
		{
			name: "successful openat",
			in: record{
				PID:        42,
				TimeNS:     1700000000000000000,
				DurationNS: 5300,
				Nr:         257,
				Ret:        3,
				Args:       [6]uint64{0xffffff9c, 0x7ffd8000, 0, 0, 0, 0},
			},
			want: trace.Event{
				Name:       "openat",
				Timestamp:  timeutil.Time(time.Unix(0, 1700000000000000000)),
				Parameters: []string{"0xffffff9c", "0x7ffd8000", "0x0", "0x0", "0x0", "0x0"},
				Result:     3,
				DurationNS: 5300,
			},
		},
		{
			name: "failed open maps errno",
			in: record{
				PID:        42,
				TimeNS:     1700000000000001000,
				DurationNS: 900,
				Nr:         2,
				Ret:        -2,
			},
			want: trace.Event{
				Name:       "open",
				Timestamp:  timeutil.Time(time.Unix(0, 1700000000000001000)),
				Parameters: []string{"0x0", "0x0", "0x0", "0x0", "0x0", "0x0"},
				Result:     -2,
				DurationNS: 900,
				Error:      "ENOENT",
			},
		},
		{
			name: "mmap returns an address not an error",
			in: record{
				PID:        42,
				TimeNS:     1700000000000002000,
				DurationNS: 2100,
				Nr:         9,
				Ret:        0x7f1234560000,
			},
			want: trace.Event{
				Name:       "mmap",
				Timestamp:  timeutil.Time(time.Unix(0, 1700000000000002000)),
				Parameters: []string{"0x0", "0x0", "0x0", "0x0", "0x0", "0x0"},
				Result:     0x7f1234560000,
				DurationNS: 2100,
			},
		},
		{
			name: "unknown syscall and errno",
			in: record{
				PID:        42,
				TimeNS:     1700000000000003000,
				DurationNS: 100,
				Nr:         999,
				Ret:        -399,
			},
			want: trace.Event{
				Name:       "syscall_999",
				Timestamp:  timeutil.Time(time.Unix(0, 1700000000000003000)),
				Parameters: []string{"0x0", "0x0", "0x0", "0x0", "0x0", "0x0"},
				Result:     -399,
				DurationNS: 100,
				Error:      "errno_399",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := testutil.Diff(tt.in.event(), tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestRecordExit(t *testing.T) {
	r := record{PID: 42, Flags: flagProcessExit}
	if !r.exit() {
		t.Fatal("expected an exit record")
	}
	if (record{PID: 42}).exit() {
		t.Fatal("expected a syscall record")
	}
}

func TestSyscallName(t *testing.T) {
	// The watchlist in the anomaly detector relies on these names.
	tests := []struct {
		nr   uint64
		want string
	}{
		{10, "mprotect"},
		{41, "socket"},
		{42, "connect"},
		{56, "clone"},
		{57, "fork"},
		{59, "execve"},
		{62, "kill"},
		{87, "unlink"},
		{90, "chmod"},
		{101, "ptrace"},
		{105, "setuid"},
		{310, "process_vm_readv"},
		{311, "process_vm_writev"},
		{319, "memfd_create"},
		{322, "execveat"},
	}
	for _, tt := range tests {
		if got := syscallName(tt.nr); got != tt.want {
			t.Fatalf("expected syscall %d to be %q, got %q", tt.nr, tt.want, got)
		}
	}
}
