package procd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/memory"
	"github.com/multios/introspect/internal/testutil"
	"github.com/multios/introspect/internal/timeutil"
	"github.com/multios/introspect/internal/trace"
)

// fakeDaemon serves the daemon API for one traceable process with pid 42.
// Poll responses for its stream are scripted in order; once the script is
// exhausted the stream reports the process as exited.
type fakeDaemon struct {
	mu       sync.Mutex
	polls    []http.HandlerFunc
	detached []string

	server *httptest.Server
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	d := new(fakeDaemon)
	d.server = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDaemon) pushPoll(h http.HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls = append(d.polls, h)
}

func (d *fakeDaemon) detachedStreams() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	detached := make([]string, len(d.detached))
	copy(detached, d.detached)
	return detached
}

func (d *fakeDaemon) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/processes/42/trace":
		fmt.Fprint(w, `{"stream_id": "s-1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/streams/s-1/next":
		d.mu.Lock()
		if len(d.polls) == 0 {
			d.mu.Unlock()
			w.WriteHeader(http.StatusGone)
			return
		}
		poll := d.polls[0]
		d.polls = d.polls[1:]
		d.mu.Unlock()
		poll(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/streams/"):
		d.mu.Lock()
		d.detached = append(d.detached, strings.TrimPrefix(r.URL.Path, "/streams/"))
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func eventPoll(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}
}

func emptyPoll(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected an error for an empty host")
	}
}

func TestAttachAndStream(t *testing.T) {
	d := newFakeDaemon(t)
	d.pushPoll(eventPoll(`{"name":"openat","timestamp":1700000000000000000,"args":["AT_FDCWD","/etc/hosts","O_RDONLY"],"return_value":3,"duration_ns":4500}`))
	d.pushPoll(emptyPoll)
	d.pushPoll(eventPoll(`{"name":"read","timestamp":1700000000000100000,"return_value":-1,"duration_ns":1200,"errno":"EAGAIN"}`))

	c, err := NewClient(d.server.URL)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := c.Attach(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	var events []trace.Event
	for {
		event, err := stream.Next(context.Background())
		if errors.Is(err, errorutil.ErrEndOfStream) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		events = append(events, event)
	}

	want := []trace.Event{
		{
			Name:       "openat",
			Timestamp:  timeutil.Time(time.Unix(0, 1700000000000000000)),
			Parameters: []string{"AT_FDCWD", "/etc/hosts", "O_RDONLY"},
			Result:     3,
			DurationNS: 4500,
		},
		{
			Name:       "read",
			Timestamp:  timeutil.Time(time.Unix(0, 1700000000000100000)),
			Result:     -1,
			DurationNS: 1200,
			Error:      "EAGAIN",
		},
	}
	if diff := testutil.Diff(events, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestAttachValidation(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Attach(context.Background(), 0); !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAttachDaemonErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "unknown process",
			status:  http.StatusNotFound,
			body:    `{"error":{"code":"no_such_process","message":"no process with pid 42"}}`,
			wantErr: errorutil.ErrNotFound,
		},
		{
			name:    "tracing forbidden",
			status:  http.StatusForbidden,
			body:    `{"error":{"code":"permission_denied","message":"ptrace scope forbids attaching"}}`,
			wantErr: errorutil.ErrCaptureUnavailable,
		},
		{
			name:    "probe not loaded",
			status:  http.StatusServiceUnavailable,
			body:    `{"error":{"code":"capture_unavailable","message":"syscall probe is not loaded"}}`,
			wantErr: errorutil.ErrCaptureUnavailable,
		},
		{
			name:    "bad request",
			status:  http.StatusBadRequest,
			body:    `{"error":{"code":"invalid_argument","message":"pid must be numeric"}}`,
			wantErr: errorutil.ErrInvalidArgument,
		},
		{
			name:    "status fallback without a body",
			status:  http.StatusNotFound,
			body:    ``,
			wantErr: errorutil.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()
			c, err := NewClient(server.URL)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := c.Attach(context.Background(), 42); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAttachInternalDaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Attach(context.Background(), 42)
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, errorutil.ErrInvalidArgument) || errors.Is(err, errorutil.ErrNotFound) || errors.Is(err, errorutil.ErrCaptureUnavailable) {
		t.Fatalf("expected an unmapped error, got %v", err)
	}
	if !strings.Contains(err.Error(), "http status 500") {
		t.Fatalf("expected the status code in the error, got %v", err)
	}
}

func TestRegions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/processes/42/memory/heap" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"regions":[
			{"base_address":4096,"size":8192,"state":"used","protection":"rw-","kind":"anonymous","label":"[heap]"},
			{"base_address":12288,"size":4096,"state":"free"},
			{"base_address":16384,"size":4096,"state":"used","protection":"rw-"},
			{"base_address":"18446744073709547520","size":"4096","state":"used","protection":"r--","label":"[vsyscall]"}
		]}`)
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	regions, err := c.Regions(context.Background(), 42, memory.ViewHeap)
	if err != nil {
		t.Fatal(err)
	}

	// The last region's address arrives as a decimal string: it is above
	// what a float64-backed JSON emitter can carry as a number.
	want := []memory.Region{
		{BaseAddress: 4096, Size: 8192, Used: true, Protection: "rw-", AllocationKind: "anonymous", Label: "[heap]"},
		{BaseAddress: 12288, Size: 4096},
		{BaseAddress: 16384, Size: 4096, Used: true, Protection: "rw-"},
		{BaseAddress: 18446744073709547520, Size: 4096, Used: true, Protection: "r--", Label: "[vsyscall]"},
	}
	if diff := testutil.Diff(regions, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestRegionsValidation(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Regions(context.Background(), 0, memory.ViewHeap); !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := c.Regions(context.Background(), 42, memory.View("rodata")); !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRegionsDaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"no_such_process","message":"no process with pid 42"}}`)
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Regions(context.Background(), 42, memory.ViewStack); !errors.Is(err, errorutil.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
