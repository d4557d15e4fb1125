//go:build !linux

package probe

import (
	"context"
	"fmt"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/trace"
)

// Source is the kernel probe consumer, which only exists on Linux. On every
// other platform Attach reports capture as unavailable.
type Source struct {
	pinPath string
}

func NewSource(pinPath string) *Source {
	return &Source{pinPath: pinPath}
}

func (s *Source) Attach(_ context.Context, _ uint64) (trace.Stream, error) {
	return nil, fmt.Errorf("%w: kernel probe capture requires linux", errorutil.ErrCaptureUnavailable)
}

func (s *Source) Close() error {
	return nil
}
