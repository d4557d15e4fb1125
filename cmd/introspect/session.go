package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"

	"github.com/multios/introspect/internal/httputil"
	"github.com/multios/introspect/internal/occurrence"
	"github.com/multios/introspect/internal/stats"
	"github.com/multios/introspect/internal/trace"
)

const (
	defaultEventsPageSize uint64 = 100
	maxEventsPageSize     uint64 = 1000
)

type (
	GetSessionsResponse struct {
		Sessions []trace.Info `json:"sessions"`
	}

	GetSessionEventsResponse struct {
		SessionID string        `json:"session_id"`
		Total     int           `json:"total"`
		Events    []trace.Event `json:"events"`
	}
)

func (env *environment) postSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	rawProcessID := ps.ByName("process_id")
	processID, err := strconv.ParseUint(rawProcessID, 10, 64)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hub.Scope().SetTag("process_id", rawProcessID)

	opts, err := decodeSessionOptions(ctx, r)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if opts.RingCapacity == 0 {
		opts.RingCapacity = env.config.SessionRingCapacity
	}

	session, err := env.registry.Start(ctx, processID, opts)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}
	info := session.Info()

	hub.Scope().SetTag("session_id", info.ID)

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal session descriptor"
	b, err := json.Marshal(info)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(b)
}

// decodeSessionOptions reads the session options from the request body. An
// empty body is a valid request for a session with default options.
func decodeSessionOptions(ctx context.Context, r *http.Request) (trace.Options, error) {
	s := sentry.StartSpan(ctx, "request.body")
	s.Description = "Decode session options"
	defer s.Finish()

	var opts trace.Options
	err := json.NewDecoder(r.Body).Decode(&opts)
	if err == io.EOF {
		return trace.Options{}, nil
	}
	return opts, err
}

func (env *environment) getSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal session list"
	b, err := json.Marshal(GetSessionsResponse{Sessions: env.registry.List()})
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (env *environment) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	sessionID := ps.ByName("session_id")

	hub.Scope().SetTag("session_id", sessionID)

	session, err := env.registry.Get(sessionID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal session descriptor"
	b, err := json.Marshal(session.Info())
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (env *environment) postSessionStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	sessionID := ps.ByName("session_id")

	hub.Scope().SetTag("session_id", sessionID)

	session, err := env.registry.Stop(sessionID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}
	info := session.Info()

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Analyze session events"
	report := stats.Analyze(session.Events(), env.config.analysisOptions())
	occurrences := occurrence.Find(info, report)
	s.Finish()

	if len(occurrences) > 0 {
		occurrenceMessages, err := occurrence.GenerateKafkaMessageBatch(occurrences)
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		s = sentry.StartSpan(ctx, "processing")
		s.Description = "Send occurrences to Kafka"
		err = env.occurrencesWriter.WriteMessages(ctx, occurrenceMessages...)
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if env.occurrencesInserter != nil {
			savers := make([]*occurrence.Occurrence, 0, len(occurrences))
			for i := range occurrences {
				savers = append(savers, &occurrences[i])
			}
			s = sentry.StartSpan(ctx, "processing")
			s.Description = "Insert occurrences into BigQuery"
			err = env.occurrencesInserter.Put(ctx, savers)
			s.Finish()
			if err != nil {
				// The session is stopped and the occurrences are on their
				// way to Kafka, the audit insert must not fail the request.
				hub.CaptureException(err)
			}
		}
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal session descriptor"
	b, err := json.Marshal(info)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (env *environment) getSessionEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	sessionID := ps.ByName("session_id")

	hub.Scope().SetTag("session_id", sessionID)

	session, err := env.registry.Get(sessionID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	limit, offset, ok := httputil.GetPagination(w, r, defaultEventsPageSize, maxEventsPageSize)
	if !ok {
		return
	}

	response := GetSessionEventsResponse{
		SessionID: sessionID,
		Total:     session.Info().EventCount,
		Events:    session.EventsPage(offset, limit),
	}

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal event page"
	b, err := json.Marshal(response)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (env *environment) getSessionStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	sessionID := ps.ByName("session_id")

	hub.Scope().SetTag("session_id", sessionID)

	session, err := env.registry.Get(sessionID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	opts, err := env.analysisOptionsFromRequest(r)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Analyze session events"
	report := stats.Analyze(session.Events(), opts)
	s.Finish()

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal analysis report"
	b, err := json.Marshal(report)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
