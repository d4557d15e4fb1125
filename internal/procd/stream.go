package procd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/trace"
)

const detachTimeout = 5 * time.Second

// stream is one attached capture stream served by the daemon. Events are
// pulled with a long poll: the daemon holds the request until an event
// arrives or its poll window elapses, in which case it answers 204 and the
// stream polls again.
type stream struct {
	client Client
	id     string
}

func (s *stream) Next(ctx context.Context) (trace.Event, error) {
	url := fmt.Sprintf("%s/streams/%s/next", s.client.url, s.id)
	for {
		if err := ctx.Err(); err != nil {
			return trace.Event{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return trace.Event{}, err
		}
		req.Header.Set("accept", "application/json")
		resp, err := s.client.http.Do(req)
		if err != nil {
			// The http client flattens the cause into a string, so a poll cut
			// short by cancellation has to be recovered from the context.
			if ctx.Err() != nil {
				return trace.Event{}, ctx.Err()
			}
			return trace.Event{}, fmt.Errorf("procd: poll stream %s: %w", s.id, err)
		}
		switch resp.StatusCode {
		case http.StatusOK:
			var we wireEvent
			err = gojson.NewDecoder(resp.Body).Decode(&we)
			resp.Body.Close()
			if err != nil {
				return trace.Event{}, fmt.Errorf("procd: decode event: %w", err)
			}
			return we.event(), nil
		case http.StatusNoContent:
			// Empty poll window.
			resp.Body.Close()
		case http.StatusGone:
			resp.Body.Close()
			return trace.Event{}, errorutil.ErrEndOfStream
		default:
			err = responseError(resp)
			resp.Body.Close()
			return trace.Event{}, err
		}
	}
}

// Close detaches the stream. It runs on its own short deadline because the
// capture context is usually already canceled by the time a stream is
// closed. Detaching a stream the daemon already dropped is not an error.
func (s *stream) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/streams/%s", s.client.url, s.id), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("procd: detach stream %s: %w", s.id, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return nil
	}
	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	return nil
}
