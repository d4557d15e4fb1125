package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/multios/introspect/internal/timeutil"
)

type (
	State      string
	StopReason string

	// Filter narrows the stream a session records. Events dropped by the
	// filter are invisible to the session: they are neither buffered nor
	// shown to breakpoints. An empty filter keeps everything.
	Filter struct {
		Syscalls   []string `json:"syscalls,omitempty"`
		ErrorsOnly bool     `json:"errors_only,omitempty"`
	}

	// Session is one tracing run against a process. Events are appended by
	// the session's capture loop only; all exported methods are safe for
	// concurrent use and never block the capture loop for long.
	Session struct {
		mu          sync.RWMutex
		id          string
		processID   uint64
		state       State
		filter      Filter
		label       string
		breakpoints []Breakpoint
		events      []Event
		capacity    int
		lastEventID uint64
		dropped     uint64
		startedAt   time.Time
		stoppedAt   time.Time
		stopReason  StopReason
		err         error
		cancel      context.CancelFunc
	}

	// Info is the client-facing descriptor of a session.
	Info struct {
		ID            string         `json:"id"`
		ProcessID     uint64         `json:"process_id"`
		State         State          `json:"state"`
		Label         string         `json:"label,omitempty"`
		Filter        Filter         `json:"filter"`
		Breakpoints   []Breakpoint   `json:"breakpoints,omitempty"`
		EventCount    int            `json:"event_count"`
		DroppedEvents uint64         `json:"dropped_events"`
		StartedAt     timeutil.Time  `json:"started_at"`
		StoppedAt     *timeutil.Time `json:"stopped_at,omitempty"`
		StopReason    StopReason     `json:"stop_reason,omitempty"`
		Error         string         `json:"error,omitempty"`
	}
)

const (
	StateActive  State = "active"
	StateStopped State = "stopped"

	StopReasonRequest        StopReason = "request"
	StopReasonBreakpoint     StopReason = "breakpoint"
	StopReasonCaptureFailure StopReason = "capture_failure"
	StopReasonEndOfStream    StopReason = "end_of_stream"
)

func newSession(processID uint64, opts Options, breakpoints []Breakpoint, capacity int, cancel context.CancelFunc) *Session {
	return &Session{
		id:          uuid.New().String(),
		processID:   processID,
		state:       StateActive,
		filter:      opts.Filter,
		label:       opts.Label,
		breakpoints: breakpoints,
		capacity:    capacity,
		startedAt:   time.Now().UTC(),
		cancel:      cancel,
	}
}

// Match reports whether the filter keeps the event.
func (f Filter) Match(e Event) bool {
	if f.ErrorsOnly && e.Error == "" {
		return false
	}
	if len(f.Syscalls) == 0 {
		return true
	}
	for _, name := range f.Syscalls {
		if name == e.Name {
			return true
		}
	}
	return false
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) ProcessID() uint64 {
	return s.processID
}

// ingest appends one captured event and evaluates breakpoints against it, in
// registration order, first match wins. It reports whether a breakpoint
// fired; the firing event is part of the recorded history. Once the event
// window is full, the oldest half is evicted so the session always keeps the
// most recent activity.
func (s *Session) ingest(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	if !s.filter.Match(e) {
		return false
	}
	s.lastEventID++
	e.ID = s.lastEventID
	if len(s.events) >= s.capacity {
		half := s.capacity / 2
		if half == 0 {
			half = 1
		}
		n := copy(s.events, s.events[half:])
		s.events = s.events[:n]
		s.dropped += uint64(half)
	}
	s.events = append(s.events, e)
	for i := range s.breakpoints {
		if s.breakpoints[i].matches(e) {
			s.breakpoints[i].HitCount++
			return true
		}
	}
	return false
}

// finish moves the session to Stopped. Only the first caller wins: it
// receives the buffered events for the one-time history flush, every later
// caller gets ok == false. Stopped is terminal.
func (s *Session) finish(reason StopReason, cause error) ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return nil, false
	}
	s.state = StateStopped
	s.stopReason = reason
	s.stoppedAt = time.Now().UTC()
	s.err = cause
	s.cancel()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events, true
}

// Events returns a copy of the session's current event window.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

// EventsPage returns a copy of one page of the event window. Offsets index
// into the current window, not the full stream: once eviction kicked in,
// offset 0 is the oldest retained event.
func (s *Session) EventsPage(offset, limit uint64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	size := uint64(len(s.events))
	if offset >= size {
		return []Event{}
	}
	end := offset + limit
	if end > size || end < offset {
		end = size
	}
	page := make([]Event, end-offset)
	copy(page, s.events[offset:end])
	return page
}

// Info returns the client-facing descriptor of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ID:            s.id,
		ProcessID:     s.processID,
		State:         s.state,
		Label:         s.label,
		Filter:        s.filter,
		EventCount:    len(s.events),
		DroppedEvents: s.dropped,
		StartedAt:     timeutil.Time(s.startedAt),
		StopReason:    s.stopReason,
	}
	if len(s.breakpoints) > 0 {
		info.Breakpoints = make([]Breakpoint, len(s.breakpoints))
		copy(info.Breakpoints, s.breakpoints)
	}
	if !s.stoppedAt.IsZero() {
		stoppedAt := timeutil.Time(s.stoppedAt)
		info.StoppedAt = &stoppedAt
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}
