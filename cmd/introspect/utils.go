package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/stats"
)

// statusFromError maps the error taxonomy onto response status codes.
// Anything outside the taxonomy is an internal error.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, errorutil.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errorutil.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errorutil.ErrCaptureUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, errorutil.ErrIntegrityViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// analysisOptionsFromRequest layers per-request threshold overrides over the
// configured analysis options.
func (e *environment) analysisOptionsFromRequest(r *http.Request) (stats.Options, error) {
	opts := e.config.analysisOptions()
	q := r.URL.Query()
	if raw := q.Get("top_n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return opts, fmt.Errorf("%w: top_n must be a positive integer", errorutil.ErrInvalidArgument)
		}
		opts.TopN = v
	}
	if raw := q.Get("slow_threshold_ns"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || v == 0 {
			return opts, fmt.Errorf("%w: slow_threshold_ns must be a positive integer", errorutil.ErrInvalidArgument)
		}
		opts.SlowThresholdNS = v
	}
	if raw := q.Get("high_error_rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 1 {
			return opts, fmt.Errorf("%w: high_error_rate must be between 0 and 1", errorutil.ErrInvalidArgument)
		}
		opts.HighErrorRate = v
	}
	return opts, nil
}
