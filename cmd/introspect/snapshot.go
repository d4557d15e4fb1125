package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/httputil"
	"github.com/multios/introspect/internal/memory"
	"github.com/multios/introspect/internal/storageutil"
)

type (
	PostSnapshotRequest struct {
		SessionID string `json:"session_id"`
		Label     string `json:"label"`
	}

	GetSnapshotsResponse struct {
		Snapshots []*memory.Snapshot `json:"snapshots"`
	}

	GetFragmentationResponse struct {
		SnapshotID    uint64      `json:"snapshot_id"`
		View          memory.View `json:"view"`
		Fragmentation float64     `json:"fragmentation"`
	}

	GetSnapshotDiffResponse struct {
		Diff *memory.Diff      `json:"diff"`
		Leak memory.LeakReport `json:"leak"`
	}
)

func (env *environment) postSnapshot(w http.ResponseWriter, r *http.Request) {
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

	var req PostSnapshotRequest
	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil && err != io.EOF {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hub.Scope().SetContext("Snapshot request", map[string]interface{}{
		"label":      req.Label,
		"session_id": req.SessionID,
	})

	// A snapshot may record the session it was taken under, but only one of
	// this process.
	if req.SessionID != "" {
		session, err := env.registry.Get(req.SessionID)
		if err == nil && session.ProcessID() != processID {
			err = fmt.Errorf("%w: session %s belongs to another process",
				errorutil.ErrInvalidArgument, req.SessionID)
		}
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Take memory snapshot"
	snapshot, err := env.store.Take(ctx, processID, req.SessionID, req.Label)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal snapshot"
	b, err := json.Marshal(snapshot)
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

func (env *environment) getProcessSnapshots(w http.ResponseWriter, r *http.Request) {
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

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal snapshot list"
	b, err := json.Marshal(GetSnapshotsResponse{Snapshots: env.store.List(processID)})
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (env *environment) getSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	rawSnapshotID := ps.ByName("snapshot_id")
	snapshotID, err := strconv.ParseUint(rawSnapshotID, 10, 64)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hub.Scope().SetTag("snapshot_id", rawSnapshotID)

	snapshot, err := env.store.Get(snapshotID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal snapshot"
	b, err := json.Marshal(snapshot)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (env *environment) getSnapshotFragmentation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	rawSnapshotID := ps.ByName("snapshot_id")
	snapshotID, err := strconv.ParseUint(rawSnapshotID, 10, 64)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hub.Scope().SetTag("snapshot_id", rawSnapshotID)

	params, logger, ok := httputil.GetRequiredQueryParameters(w, r, "view")
	if !ok {
		return
	}

	hub.Scope().SetTags(params)

	view := memory.View(params["view"])
	if !memory.ValidView(view) {
		logger.Error().Msg("unknown snapshot view")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	snapshot, err := env.store.Get(snapshotID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	response := GetFragmentationResponse{
		SnapshotID:    snapshot.ID,
		View:          view,
		Fragmentation: memory.Fragmentation(snapshot, view),
	}

	s := sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal fragmentation score"
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

func (env *environment) getSnapshotDiff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	rawBaseID := ps.ByName("snapshot_id")
	baseID, err := strconv.ParseUint(rawBaseID, 10, 64)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rawTargetID := ps.ByName("other_id")
	targetID, err := strconv.ParseUint(rawTargetID, 10, 64)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hub.Scope().SetTags(map[string]string{
		"base_id":   rawBaseID,
		"target_id": rawTargetID,
	})

	base, err := env.store.Get(baseID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}
	target, err := env.store.Get(targetID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Diff snapshots"
	response := GetSnapshotDiffResponse{}
	response.Diff, err = memory.Compare(base, target, env.config.LeakThreshold)
	if err == nil {
		response.Leak, err = memory.CheckLeak(base, target, env.config.LeakThreshold)
	}
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal snapshot diff"
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

func (env *environment) postSnapshotArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	rawSnapshotID := ps.ByName("snapshot_id")
	snapshotID, err := strconv.ParseUint(rawSnapshotID, 10, 64)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	hub.Scope().SetTag("snapshot_id", rawSnapshotID)

	snapshot, err := env.store.Get(snapshotID)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(statusFromError(err))
		return
	}

	s := sentry.StartSpan(ctx, "gcs.write")
	s.Description = "Write snapshot archive"
	err = storageutil.CompressedWrite(ctx, env.storage, snapshot.StoragePath(), snapshot)
	s.Finish()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// This is a transient error, we'll retry
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			// These errors won't be retried
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
