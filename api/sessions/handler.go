// Package sessions exposes the simulation registry over HTTP and
// WebSocket.
package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridtwin/gridtwin/core/dispatch"
	"github.com/gridtwin/gridtwin/core/logger"
	"github.com/gridtwin/gridtwin/core/metrics"
	"github.com/gridtwin/gridtwin/core/session"
)

const ratioEps = 1e-9

// Handler serves the session API.
type Handler struct {
	registry *session.Registry
	sink     metrics.Sink
	log      logger.Logger
	upgrader websocket.Upgrader
}

// New creates a Handler. A nil sink disables dispatch-run recording.
func New(registry *session.Registry, sink metrics.Sink, log logger.Logger) *Handler {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Handler{
		registry: registry,
		sink:     sink,
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/healthz", h.health)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}/state", h.state)
	mux.HandleFunc("POST /api/sessions/{id}/step", h.step)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.close)
	mux.HandleFunc("GET /api/sessions/{id}/ped", h.ped)
	mux.HandleFunc("GET /api/sessions/{id}/series", h.series)
	mux.HandleFunc("POST /api/sessions/{id}/dispatch", h.dispatch)
	mux.HandleFunc("GET /api/sessions/{id}/ws", h.stream)
}

type createRequest struct {
	Settings  session.Settings   `json:"settings"`
	Overrides map[string]float64 `json:"overrides"`
}

type stepRequest struct {
	Steps int `json:"steps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}
	s, err := h.registry.Create(req.Settings, req.Overrides)
	if err != nil {
		var cfgErr *session.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: cfgErr.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, session.BuildSnapshot(s))
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.Snapshot(r.PathValue("id"))
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) step(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	snap, err := h.registry.Step(r.PathValue("id"), req.Steps)
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.registry.CloseSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (h *Handler) ped(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	gen, load, dt, ok := s.ElapsedSeries()
	if !ok {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "environment exposes no series"})
		return
	}

	totalGen, totalDemand := 0.0, 0.0
	for _, v := range gen {
		totalGen += v * dt
	}
	for _, v := range load {
		totalDemand += v * dt
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"steps":            len(load),
		"period_hours":     float64(len(load)) * dt,
		"total_gen_mwh":    totalGen,
		"total_demand_mwh": totalDemand,
		"ped_absolute_mwh": totalGen - totalDemand,
		"ped_ratio":        totalGen / (totalDemand + ratioEps),
	})
}

func (h *Handler) series(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	limit := 2000
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			limit = clamp(n, 1, 50000)
		}
	}
	view, ok := s.SeriesWindow(limit)
	if !ok {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "environment exposes no series"})
		return
	}

	steps := make([]int, 0, view.End-view.Start)
	for i := view.Start; i < view.End; i++ {
		steps = append(steps, i)
	}
	var timestamps []string
	if view.Timestamps != nil {
		timestamps = make([]string, len(view.Timestamps))
		for i, t := range view.Timestamps {
			timestamps[i] = t.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start":      view.Start,
		"end":        view.End,
		"steps":      steps,
		"timestamps": timestamps,
		"gen_mw":     view.GenMW,
		"load_mw":    view.LoadMW,
	})
}

// dispatch runs the merit-order engine over the session's elapsed series.
// Body overrides take precedence over the overrides the session was
// created with.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	overrides := s.Overrides()
	if r.ContentLength > 0 {
		var body map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if overrides == nil {
			overrides = body
		} else {
			for k, v := range body {
				overrides[k] = v
			}
		}
	}

	gen, load, dt, ok := s.ElapsedSeries()
	if !ok {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "environment exposes no series"})
		return
	}

	start := time.Now()
	result, err := dispatch.Evaluate(dispatch.BuildConfig(overrides, dt), gen, load)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := h.sink.RecordDispatchRun(metrics.DispatchRunEvent{
		Steps:              len(load),
		TotalGenerationMWh: result.KPIs.TotalGenerationMWh,
		TotalDemandMWh:     result.KPIs.TotalDemandMWh,
		GridImportMWh:      result.KPIs.GridImportMWh,
		Duration:           time.Since(start),
		Time:               time.Now(),
	}); err != nil {
		h.log.Warnf("record dispatch run: %v", err)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeRegistryError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
