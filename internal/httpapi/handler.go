// Package httpapi exposes the routing engine to the document pipeline.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/audit"
	"github.com/inkwell-ai/chunkrouter/internal/engine"
	"github.com/inkwell-ai/chunkrouter/internal/httputil"
	"github.com/inkwell-ai/chunkrouter/internal/types"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

// Handler holds dependencies for the routing HTTP handlers.
type Handler struct {
	engine  *engine.Engine
	tracker *usage.Tracker
	audit   *audit.Recorder
}

func NewHandler(eng *engine.Engine, tracker *usage.Tracker, auditor *audit.Recorder) *Handler {
	return &Handler{
		engine:  eng,
		tracker: tracker,
		audit:   auditor,
	}
}

// Generate handles POST /v1/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var routeReq types.RouteRequest
	if err := json.Unmarshal(body, &routeReq); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if routeReq.Chunk == "" {
		httputil.WriteBadRequestError(w, reqID, "chunk is required")
		return
	}
	if routeReq.Task == "" {
		routeReq.Task = types.TaskSummarize
	}
	routeReq.RequestID = reqID

	result := h.engine.RouteAndExecute(r.Context(), routeReq)
	duration := time.Since(receivedAt)

	slog.Info("routing request completed",
		"request_id", reqID,
		"task", string(routeReq.Task),
		"success", result.Success,
		"api_used", result.APIUsed,
		"attempts_made", result.AttemptsMade,
		"tried_apis", result.TriedAPIs,
		"duration_ms", duration.Milliseconds(),
	)

	h.audit.Record(audit.Entry{
		RequestID:    reqID,
		ChunkHash:    audit.HashChunk(routeReq.Chunk),
		Task:         string(routeReq.Task),
		Success:      result.Success,
		BackendUsed:  result.APIUsed,
		Model:        result.Model,
		AttemptsMade: result.AttemptsMade,
		TriedAPIs:    result.TriedAPIs,
		ErrorText:    result.Error,
		Duration:     duration,
	})

	// Provider failure is a routed outcome, not a transport error; callers
	// branch on the success field.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Status handles GET /v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snapshots := h.tracker.Snapshots()

	resp := statusResponse{
		Backends:           snapshots,
		ConfiguredBackends: len(snapshots),
	}
	for _, s := range snapshots {
		if s.Available {
			resp.AvailableBackends++
		}
		resp.TotalCalls += s.CallsMade
		resp.TotalSuccesses += s.SuccessfulCalls
		resp.TotalFailures += s.FailedCalls
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Reset handles POST /v1/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	h.tracker.ForceEnableAll()
	slog.Warn("manual emergency reset via API", "request_id", reqID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resetResponse{
		Reset:             true,
		AvailableBackends: len(h.tracker.Available()),
	})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type statusResponse struct {
	Backends           []usage.Snapshot `json:"backends"`
	ConfiguredBackends int              `json:"configured_backends"`
	AvailableBackends  int              `json:"available_backends"`
	TotalCalls         int              `json:"total_calls"`
	TotalSuccesses     int              `json:"total_successes"`
	TotalFailures      int              `json:"total_failures"`
}

type resetResponse struct {
	Reset             bool `json:"reset"`
	AvailableBackends int  `json:"available_backends"`
}
