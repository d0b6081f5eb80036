package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/pkg/volmgr"
	"github.com/marmos91/dittoblock/pkg/volume"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

// VolumeHandler serves the volume lifecycle endpoints.
type VolumeHandler struct {
	mgr *volmgr.Manager
}

// NewVolumeHandler creates the volume handler.
func NewVolumeHandler(mgr *volmgr.Manager) *VolumeHandler {
	return &VolumeHandler{mgr: mgr}
}

// CreateVolumeRequest is the body of POST /api/v1/volumes. A missing id is
// generated server-side.
type CreateVolumeRequest struct {
	ID         *uuid.UUID `json:"id,omitempty"`
	Name       string     `json:"name"`
	Size       uint64     `json:"size"`
	PageSize   uint32     `json:"page_size"`
	NumStreams uint32     `json:"num_streams,omitempty"`
}

// Create handles POST /api/v1/volumes.
func (h *VolumeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	info := volume.VolumeInfo{
		Name:       req.Name,
		Size:       req.Size,
		PageSize:   req.PageSize,
		NumStreams: req.NumStreams,
	}
	if req.ID != nil {
		info.ID = *req.ID
	} else {
		info.ID = uuid.New()
	}

	v, err := h.mgr.CreateVolume(r.Context(), info)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v.Stats())
}

// Remove handles DELETE /api/v1/volumes/{id}.
func (h *VolumeHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseVolumeID(w, r)
	if !ok {
		return
	}

	err := h.mgr.RemoveVolume(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case volerrors.CodeOf(err) == volerrors.ErrInvariantViolation:
		// Destruction started; the reaper finishes once the volume drains.
		writeJSON(w, http.StatusAccepted, map[string]string{
			"state":  volume.StateDestroying.String(),
			"detail": "volume draining, removal completes asynchronously",
		})
	default:
		writeLifecycleError(w, err)
	}
}

// Get handles GET /api/v1/volumes/{id}.
func (h *VolumeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseVolumeID(w, r)
	if !ok {
		return
	}

	stats, err := h.mgr.GetVolumeStats(id)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Stats handles GET /api/v1/volumes/{id}/stats. Alias of Get kept so
// clients can poll stats without implying full volume details.
func (h *VolumeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.Get(w, r)
}

// ListResponse is the body of GET /api/v1/volumes.
type ListResponse struct {
	Volumes []volume.Stats `json:"volumes"`
}

// List handles GET /api/v1/volumes.
func (h *VolumeHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Volumes: h.mgr.ListVolumeStats()})
}

// ServiceStats handles GET /api/v1/stats.
func (h *VolumeHandler) ServiceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mgr.Stats())
}

func parseVolumeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "Invalid volume id")
		return uuid.Nil, false
	}
	return id, true
}

// writeLifecycleError maps the volume error taxonomy onto HTTP problems.
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch volerrors.CodeOf(err) {
	case volerrors.ErrNotFound:
		notFound(w, err.Error())
	case volerrors.ErrAlreadyExists:
		conflict(w, err.Error())
	case volerrors.ErrShuttingDown:
		serviceUnavailable(w, err.Error())
	case volerrors.ErrInvariantViolation:
		conflict(w, err.Error())
	case volerrors.ErrResourceUnavailable:
		serviceUnavailable(w, err.Error())
	default:
		var ve *volerrors.VolumeError
		if errors.As(err, &ve) {
			internalError(w, ve.Error())
			return
		}
		badRequest(w, err.Error())
	}
}

// HealthHandler serves the unauthenticated health probes.
type HealthHandler struct {
	mgr       *volmgr.Manager
	startTime time.Time
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(mgr *volmgr.Manager) *HealthHandler {
	return &HealthHandler{mgr: mgr, startTime: time.Now()}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service":    "dittoblock",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime_sec": int64(uptime.Seconds()),
	})
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.mgr == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	stats := h.mgr.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service_id": stats.ServiceID,
		"volumes":    stats.Volumes,
	})
}
