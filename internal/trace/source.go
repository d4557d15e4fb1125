package trace

import (
	"context"
)

type (
	// Source attaches to a running process and produces its syscall stream.
	// Implementations wrap the platform tracing primitive; the registry never
	// looks behind this interface.
	Source interface {
		Attach(ctx context.Context, processID uint64) (Stream, error)
	}

	// Stream delivers the syscall events of one attached process, one at a
	// time, in capture order. Next blocks until an event is available, the
	// stream is exhausted (errorutil.ErrEndOfStream) or the context is done.
	Stream interface {
		Next(ctx context.Context) (Event, error)
		Close() error
	}
)
