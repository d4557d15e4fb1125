package trace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/multios/introspect/internal/errorutil"
)

// DefaultRingCapacity bounds the per-session event window. Once the window is
// full, the oldest half is evicted, so a long-running session converges on a
// "most recent activity" view rather than failing or blocking capture.
const DefaultRingCapacity = 10000

type (
	// Options configures a new session.
	Options struct {
		Label        string             `json:"label,omitempty"`
		Filter       Filter             `json:"filter"`
		Breakpoints  []BreakpointConfig `json:"breakpoints,omitempty"`
		RingCapacity int                `json:"ring_capacity,omitempty"`
	}

	// Registry owns every session of the service: it starts capture loops,
	// serves lookups and funnels stopped sessions into the per-process
	// history. Sessions do not survive a service restart.
	Registry struct {
		source  Source
		history *History

		mu       sync.RWMutex
		sessions map[string]*Session
	}
)

func NewRegistry(source Source, history *History) *Registry {
	return &Registry{
		source:   source,
		history:  history,
		sessions: make(map[string]*Session),
	}
}

// Start attaches to the process and begins capturing its syscalls in a new
// session. The context only bounds the attach call: the capture loop runs on
// its own cancellable context so the session outlives the request that
// started it. When the source cannot attach, no session is created and
// ErrCaptureUnavailable is returned.
func (r *Registry) Start(ctx context.Context, processID uint64, opts Options) (*Session, error) {
	if processID == 0 {
		return nil, fmt.Errorf("%w: process id must be positive", errorutil.ErrInvalidArgument)
	}
	if opts.RingCapacity < 0 {
		return nil, fmt.Errorf("%w: ring capacity must be positive", errorutil.ErrInvalidArgument)
	}
	capacity := opts.RingCapacity
	if capacity == 0 {
		capacity = DefaultRingCapacity
	}
	breakpoints, err := newBreakpoints(opts.Breakpoints)
	if err != nil {
		return nil, err
	}
	stream, err := r.source.Attach(ctx, processID)
	if err != nil {
		if errors.Is(err, errorutil.ErrCaptureUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: attach to process %d: %v", errorutil.ErrCaptureUnavailable, processID, err)
	}
	captureCtx, cancel := context.WithCancel(context.Background())
	s := newSession(processID, opts, breakpoints, capacity, cancel)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	go r.capture(captureCtx, s, stream)
	return s, nil
}

// Get returns the session with the given ID, stopped or not.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", errorutil.ErrNotFound, sessionID)
	}
	return s, nil
}

// List returns a descriptor for every known session, most recent first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		ti, tj := infos[i].StartedAt.Time(), infos[j].StartedAt.Time()
		if ti.Equal(tj) {
			return infos[i].ID < infos[j].ID
		}
		return ti.After(tj)
	})
	return infos
}

// Stop ends an active session, cancelling its capture loop and flushing the
// buffered events into the process history. Stopped sessions cannot be
// stopped again: a second stop returns ErrNotFound, same as an unknown ID.
func (r *Registry) Stop(sessionID string) (*Session, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !r.finalize(s, StopReasonRequest, nil) {
		return nil, fmt.Errorf("%w: session %s is already stopped", errorutil.ErrNotFound, sessionID)
	}
	return s, nil
}

// Close stops every active session. Used on service shutdown so buffered
// events still reach the history and capture streams are released.
func (r *Registry) Close() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		r.finalize(s, StopReasonRequest, nil)
	}
}

// finalize performs the single Active to Stopped transition. Whichever caller
// wins the transition also flushes the session's events into the per-process
// history, exactly once.
func (r *Registry) finalize(s *Session, reason StopReason, cause error) bool {
	events, ok := s.finish(reason, cause)
	if !ok {
		return false
	}
	r.history.Append(s.processID, events)
	return true
}
