package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"

	"github.com/multios/introspect/internal/stats"
)

// getProcessAnalysis reports over the process history, which accumulates the
// events of every stopped session. Events of still-running sessions are not
// part of it, those are served per session under /sessions/:session_id/stats.
func (env *environment) getProcessAnalysis(w http.ResponseWriter, r *http.Request) {
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

	opts, err := env.analysisOptionsFromRequest(r)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Analyze process history"
	report := stats.Analyze(env.history.Events(processID), opts)
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
