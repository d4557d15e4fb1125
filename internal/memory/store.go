package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/timeutil"
)

type (
	// Inspector enumerates the memory regions of one view of a process.
	// Implementations wrap the platform introspection primitive; ownership
	// of the returned slice passes to the caller.
	Inspector interface {
		Regions(ctx context.Context, processID uint64, view View) ([]Region, error)
	}

	// Store takes and serves memory snapshots. Snapshot IDs grow
	// monotonically in creation order; a failed take consumes no ID and
	// stores nothing. Snapshots live in memory for the service lifetime.
	Store struct {
		inspector Inspector

		mu        sync.RWMutex
		snapshots map[uint64]*Snapshot
		lastID    uint64
	}
)

func NewStore(inspector Inspector) *Store {
	return &Store{
		inspector: inspector,
		snapshots: make(map[uint64]*Snapshot),
	}
}

// Take captures a new snapshot of the process. The four views are enumerated
// concurrently; a view that cannot be enumerated aborts the whole snapshot
// with ErrCaptureUnavailable, and a view whose used regions overlap aborts it
// with ErrIntegrityViolation. Nothing partial is ever stored.
func (s *Store) Take(ctx context.Context, processID uint64, sessionID, label string) (*Snapshot, error) {
	if processID == 0 {
		return nil, fmt.Errorf("%w: process id must be positive", errorutil.ErrInvalidArgument)
	}

	var mu sync.Mutex
	views := make(map[View][]Region, len(AllViews))
	g, gctx := errgroup.WithContext(ctx)
	for _, view := range AllViews {
		view := view
		g.Go(func() error {
			regions, err := s.inspector.Regions(gctx, processID, view)
			if err != nil {
				if errors.Is(err, errorutil.ErrCaptureUnavailable) ||
					errors.Is(err, errorutil.ErrNotFound) ||
					errors.Is(err, errorutil.ErrInvalidArgument) {
					return err
				}
				return fmt.Errorf("%w: enumerate %s regions of process %d: %v",
					errorutil.ErrCaptureUnavailable, view, processID, err)
			}
			mu.Lock()
			views[view] = regions
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var regionID uint64
	for _, view := range AllViews {
		regions := views[view]
		sort.Slice(regions, func(i, j int) bool {
			return regions[i].BaseAddress < regions[j].BaseAddress
		})
		for i := range regions {
			regionID++
			regions[i].ID = regionID
			regions[i].View = view
		}
		if err := validateUsedRegions(view, regions); err != nil {
			return nil, err
		}
	}

	snapshot := &Snapshot{
		ProcessID: processID,
		SessionID: sessionID,
		Label:     label,
		TakenAt:   timeutil.Time(time.Now().UTC()),
		Views:     views,
		Summary:   summarize(views),
	}
	s.mu.Lock()
	s.lastID++
	snapshot.ID = s.lastID
	s.snapshots[snapshot.ID] = snapshot
	s.mu.Unlock()
	return snapshot, nil
}

// Get returns the snapshot with the given ID. The returned snapshot is
// shared and read-only.
func (s *Store) Get(id uint64) (*Snapshot, error) {
	s.mu.RLock()
	snapshot, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: snapshot %d", errorutil.ErrNotFound, id)
	}
	return snapshot, nil
}

// List returns the process's snapshots in creation order. A process without
// snapshots yields an empty list, not an error.
func (s *Store) List(processID uint64) []*Snapshot {
	s.mu.RLock()
	snapshots := make([]*Snapshot, 0)
	for _, snapshot := range s.snapshots {
		if snapshot.ProcessID == processID {
			snapshots = append(snapshots, snapshot)
		}
	}
	s.mu.RUnlock()
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

// validateUsedRegions walks the regions of one view, sorted by base address,
// and rejects overlapping used ranges. Free regions may overlap anything:
// only live allocations claim exclusive address space.
func validateUsedRegions(view View, regions []Region) error {
	var (
		lastBase uint64
		lastEnd  uint64
		haveLast bool
	)
	for _, r := range regions {
		if !r.Used {
			continue
		}
		end := r.BaseAddress + r.Size
		if end < r.BaseAddress {
			return fmt.Errorf("%w: %s region at 0x%x overflows the address space",
				errorutil.ErrIntegrityViolation, view, r.BaseAddress)
		}
		if haveLast && r.BaseAddress < lastEnd {
			return fmt.Errorf("%w: %s regions at 0x%x and 0x%x overlap",
				errorutil.ErrIntegrityViolation, view, lastBase, r.BaseAddress)
		}
		lastBase = r.BaseAddress
		lastEnd = end
		haveLast = true
	}
	return nil
}
