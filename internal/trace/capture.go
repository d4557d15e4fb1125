package trace

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/logutil"
)

// capture pulls events from the stream one at a time and feeds them to the
// session until the stream ends, capture fails, a breakpoint fires or the
// session is stopped. Ingestion is strictly sequential: an event is appended
// and evaluated against breakpoints before the next one is pulled.
func (r *Registry) capture(ctx context.Context, s *Session, stream Stream) {
	defer stream.Close()
	logger := log.With().
		Str("session_id", s.id).
		Uint64("process_id", s.processID).
		Logger().
		Sample(logutil.LevelSampler{Level: zerolog.DebugLevel})
	for {
		event, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				// The session was stopped from the outside and already
				// finalized; nothing left to do.
			case errors.Is(err, errorutil.ErrEndOfStream):
				logger.Info().Msg("capture stream ended")
				r.finalize(s, StopReasonEndOfStream, nil)
			default:
				logger.Error().Err(err).Msg("capture failed")
				r.finalize(s, StopReasonCaptureFailure, err)
			}
			return
		}
		logger.Debug().Str("syscall", event.Name).Msg("event captured")
		if fired := s.ingest(event); fired {
			logger.Info().Str("syscall", event.Name).Msg("breakpoint fired")
			r.finalize(s, StopReasonBreakpoint, nil)
			return
		}
	}
}
