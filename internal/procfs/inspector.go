package procfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/memory"
)

// Inspector reads process address spaces from /proc/<pid>/maps. Every
// mapping is classified into one of the four snapshot views, and the holes
// between a view's mappings are reported as free regions so fragmentation
// can be computed from the view alone.
type Inspector struct {
	pathBuilder func(processID uint64) string
}

// NewInspector is configured to look in /proc/<pid>/maps for processes'
// address spaces.
func NewInspector() *Inspector {
	return &Inspector{
		pathBuilder: func(processID uint64) string {
			return fmt.Sprintf("/proc/%d/maps", processID)
		},
	}
}

// NewTestInspector reads address spaces from paths built by pathBuilder
// instead of /proc.
func NewTestInspector(pathBuilder func(processID uint64) string) *Inspector {
	return &Inspector{pathBuilder: pathBuilder}
}

func (i *Inspector) Regions(ctx context.Context, processID uint64, view memory.View) ([]memory.Region, error) {
	if processID == 0 {
		return nil, fmt.Errorf("%w: process id must be positive", errorutil.ErrInvalidArgument)
	}
	if !memory.ValidView(view) {
		return nil, fmt.Errorf("%w: unknown memory view %q", errorutil.ErrInvalidArgument, view)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := i.pathBuilder(processID)
	mappings, err := readMappings(fp)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: process %d", errorutil.ErrNotFound, processID)
		}
		return nil, fmt.Errorf("%w: read %s: %v", errorutil.ErrCaptureUnavailable, fp, err)
	}

	var regions []memory.Region
	for _, m := range mappings {
		if classify(m) != view {
			continue
		}
		regions = append(regions, memory.Region{
			BaseAddress:    m.start,
			Size:           m.end - m.start,
			Used:           true,
			Protection:     m.perms[:3],
			AllocationKind: kind(m),
			Label:          m.path,
		})
	}
	sort.Slice(regions, func(a, b int) bool {
		return regions[a].BaseAddress < regions[b].BaseAddress
	})
	regions = append(regions, freeGaps(regions)...)

	log.Debug().
		Uint64("process_id", processID).
		Str("view", string(view)).
		Int("regions", len(regions)).
		Msg("address space read")

	return regions, nil
}

// classify assigns a mapping to its snapshot view. Anonymous writable
// mappings count as heap alongside [heap] itself; executable mappings are
// code wherever they come from; everything else is data.
func classify(m mapping) memory.View {
	switch {
	case m.path == "[heap]":
		return memory.ViewHeap
	case strings.HasPrefix(m.path, "[stack"):
		return memory.ViewStack
	case m.perms[2] == 'x':
		return memory.ViewCode
	case m.path == "" && strings.HasPrefix(m.perms, "rw"):
		return memory.ViewHeap
	default:
		return memory.ViewData
	}
}

func kind(m mapping) string {
	if strings.HasPrefix(m.path, "/") {
		return "file"
	}
	return "anonymous"
}

// freeGaps synthesizes a free region for every hole between two consecutive
// used regions. The slice must already be sorted by base address. Address
// space before the first and after the last mapping is not part of the view.
func freeGaps(used []memory.Region) []memory.Region {
	var free []memory.Region
	for i := 1; i < len(used); i++ {
		prevEnd := used[i-1].End()
		if used[i].BaseAddress > prevEnd {
			free = append(free, memory.Region{
				BaseAddress: prevEnd,
				Size:        used[i].BaseAddress - prevEnd,
			})
		}
	}
	return free
}
