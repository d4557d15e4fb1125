//go:build linux

package probe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/rs/zerolog/log"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/trace"
)

// Pinned object names the kernel probe exposes under its bpffs directory.
const (
	eventsMapPin = "sc_events"
	followMapPin = "follow_pids"
)

const subscriberBuffer = 1024

type (
	// Source consumes the syscall ring buffer the kernel probe pins to
	// bpffs. A single dispatcher drains the buffer and fans records out to
	// the attached streams by process id; the probe only emits events for
	// processes present in its follow map.
	Source struct {
		pinPath string

		mu     sync.Mutex
		events *ebpf.Map
		follow *ebpf.Map
		reader *ringbuf.Reader
		subs   map[uint64][]*subscription
	}

	// subscription fields are guarded by the source mutex. Its channel is
	// closed exactly once, by dispatch, failAll or detach.
	subscription struct {
		processID uint64
		ch        chan trace.Event
		err       error
		closed    bool
		dropped   uint64
	}

	stream struct {
		source *Source
		sub    *subscription
	}
)

func NewSource(pinPath string) *Source {
	return &Source{
		pinPath: pinPath,
		subs:    make(map[uint64][]*subscription),
	}
}

// Attach subscribes to the probe's events for one process. The first attach
// opens the pinned maps and starts the dispatcher; a probe that is not
// loaded surfaces as ErrCaptureUnavailable.
func (s *Source) Attach(_ context.Context, processID uint64) (trace.Stream, error) {
	if processID == 0 {
		return nil, fmt.Errorf("%w: process id must be positive", errorutil.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, fmt.Errorf("%w: open pinned probe maps under %s: %v", errorutil.ErrCaptureUnavailable, s.pinPath, err)
	}
	if len(s.subs[processID]) == 0 {
		if err := s.follow.Put(uint32(processID), true); err != nil {
			return nil, fmt.Errorf("%w: follow process %d: %v", errorutil.ErrCaptureUnavailable, processID, err)
		}
	}
	sub := &subscription{
		processID: processID,
		ch:        make(chan trace.Event, subscriberBuffer),
	}
	s.subs[processID] = append(s.subs[processID], sub)
	return &stream{source: s, sub: sub}, nil
}

// Close stops the dispatcher and closes the pinned maps. Streams still
// attached end as if their process exited.
func (s *Source) Close() error {
	s.mu.Lock()
	reader := s.reader
	events := s.events
	follow := s.follow
	s.reader = nil
	s.events = nil
	s.follow = nil
	s.mu.Unlock()
	if reader == nil {
		return nil
	}
	err := reader.Close()
	events.Close()
	follow.Close()
	return err
}

func (s *Source) startLocked() error {
	if s.reader != nil {
		return nil
	}
	events, err := ebpf.LoadPinnedMap(filepath.Join(s.pinPath, eventsMapPin), nil)
	if err != nil {
		return err
	}
	follow, err := ebpf.LoadPinnedMap(filepath.Join(s.pinPath, followMapPin), nil)
	if err != nil {
		events.Close()
		return err
	}
	reader, err := ringbuf.NewReader(events)
	if err != nil {
		events.Close()
		follow.Close()
		return err
	}
	s.events = events
	s.follow = follow
	s.reader = reader
	go s.run(reader)
	return nil
}

func (s *Source) run(reader *ringbuf.Reader) {
	for {
		rec, err := reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				s.failAll(errorutil.ErrEndOfStream)
				return
			}
			log.Error().Err(err).Msg("probe ring buffer read failed")
			s.failAll(fmt.Errorf("%w: probe ring buffer: %v", errorutil.ErrCaptureUnavailable, err))
			return
		}
		r, err := decodeRecord(rec.RawSample)
		if err != nil {
			log.Warn().Err(err).Msg("undecodable probe record dropped")
			continue
		}
		s.dispatch(r)
	}
}

// dispatch routes one record to the process's subscribers. Delivery never
// blocks: a full subscriber loses the event and keeps a drop count.
func (s *Source) dispatch(r record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[r.PID]
	if len(subs) == 0 {
		return
	}
	if r.exit() {
		for _, sub := range subs {
			sub.finish(errorutil.ErrEndOfStream)
		}
		delete(s.subs, r.PID)
		_ = s.follow.Delete(uint32(r.PID))
		return
	}
	e := r.event()
	for _, sub := range subs {
		sub.deliver(e)
	}
}

func (s *Source) failAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid, subs := range s.subs {
		for _, sub := range subs {
			sub.finish(err)
		}
		delete(s.subs, pid)
	}
}

func (s *Source) detach(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[sub.processID]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.subs, sub.processID)
		if s.follow != nil {
			_ = s.follow.Delete(uint32(sub.processID))
		}
	} else {
		s.subs[sub.processID] = subs
	}
	sub.finish(nil)
	if sub.dropped > 0 {
		log.Info().
			Uint64("process_id", sub.processID).
			Uint64("dropped", sub.dropped).
			Msg("probe subscriber dropped events")
	}
}

func (sub *subscription) deliver(e trace.Event) {
	if sub.closed {
		return
	}
	select {
	case sub.ch <- e:
	default:
		sub.dropped++
	}
}

func (sub *subscription) finish(err error) {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.err = err
	close(sub.ch)
}

func (st *stream) Next(ctx context.Context) (trace.Event, error) {
	select {
	case <-ctx.Done():
		return trace.Event{}, ctx.Err()
	case e, ok := <-st.sub.ch:
		if !ok {
			// Buffered events drain before the closure is observed, so
			// nothing recorded is lost.
			err := st.sub.err
			if err == nil {
				err = errorutil.ErrEndOfStream
			}
			return trace.Event{}, err
		}
		return e, nil
	}
}

func (st *stream) Close() error {
	st.source.detach(st.sub)
	return nil
}
