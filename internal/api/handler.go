// Package api exposes the recorder state and control operations to UIs.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/archive"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/control"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/history"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/preview"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/session"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/queue"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/response"
)

// Handler binds the session machine, preview subsystem and take history
// to HTTP. UIs are pure consumers: every mutation funnels through the
// machine or the preview manager.
type Handler struct {
	machine  *session.Machine
	previews *preview.Manager
	coord    *preview.Coordinator
	recorder *control.Client
	takes    *history.Repository
	queue    *queue.Queue
	log      *zap.Logger
}

// NewHandler creates the API handler. takes and queue may be nil when
// history/archive are disabled.
func NewHandler(machine *session.Machine, previews *preview.Manager, coord *preview.Coordinator, recorder *control.Client, takes *history.Repository, q *queue.Queue, log *zap.Logger) *Handler {
	return &Handler{
		machine:  machine,
		previews: previews,
		coord:    coord,
		recorder: recorder,
		takes:    takes,
		queue:    q,
		log:      log,
	}
}

// Status reports the full control-surface state in one read.
func (h *Handler) Status(c *gin.Context) {
	response.OK(c, gin.H{
		"status":             h.machine.Status(),
		"session":            h.machine.Session(),
		"duration_ms":        h.machine.Duration().Milliseconds(),
		"formatted_duration": h.machine.FormattedDuration(),
		"last_error":         h.machine.LastError(),
		"inputs":             h.machine.Inputs(),
		"previews":           h.previews.States(),
	})
}

// ListInputs returns every known input.
func (h *Handler) ListInputs(c *gin.Context) {
	response.OK(c, gin.H{"inputs": h.machine.Inputs()})
}

// ListSignalInputs returns only inputs currently carrying signal.
func (h *Handler) ListSignalInputs(c *gin.Context) {
	response.OK(c, gin.H{"inputs": h.machine.SignalInputs()})
}

// RefreshInputs re-fetches the input list from the appliance.
func (h *Handler) RefreshInputs(c *gin.Context) {
	inputs, err := h.recorder.Inputs(c.Request.Context())
	if err != nil {
		response.BadGateway(c, err.Error())
		return
	}
	h.machine.SetInputs(inputs)
	response.OK(c, gin.H{"inputs": h.machine.Inputs()})
}

type signalRequest struct {
	HasSignal  bool    `json:"has_signal"`
	Resolution *string `json:"resolution"`
	Framerate  *int    `json:"framerate"`
}

// UpdateInputSignal applies a signal-detection update to one input.
func (h *Handler) UpdateInputSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	h.machine.UpdateInputSignal(c.Param("id"), req.HasSignal, req.Resolution, req.Framerate)
	response.OK(c, gin.H{"inputs": h.machine.Inputs()})
}

type startRequest struct {
	Name string `json:"name"`
}

// StartRecording begins a take. 409 when one is already in flight; the
// appliance error is forwarded when the start ultimately fails so the
// UI can offer a retry.
func (h *Handler) StartRecording(c *gin.Context) {
	var req startRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.machine.Start(c.Request.Context(), req.Name); err != nil {
		if errors.Is(err, session.ErrNotIdle) {
			response.Conflict(c, err.Error())
			return
		}
		response.BadGateway(c, err.Error())
		return
	}
	response.OK(c, gin.H{
		"status":  h.machine.Status(),
		"session": h.machine.Session(),
	})
}

// StopRecording ends the take, persists it to history, and queues its
// files for archive upload.
func (h *Handler) StopRecording(c *gin.Context) {
	sess := h.machine.Session()
	res, err := h.machine.Stop(c.Request.Context())
	if err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			response.Conflict(c, err.Error())
			return
		}
		response.BadGateway(c, err.Error())
		return
	}

	var take *models.Take
	if h.takes != nil && sess != nil {
		take = &models.Take{
			ID:        uuid.New(),
			SessionID: res.SessionID,
			Name:      sess.Name,
			StartedAt: sess.StartedAt,
			StoppedAt: time.Now(),
			Duration:  time.Duration(res.DurationMS) * time.Millisecond,
			Files:     res.Files,
			Status:    models.TakeStatusCompleted,
		}
		// History is best-effort: a bookkeeping failure must not turn a
		// successful stop into an error for the operator.
		ctx := context.WithoutCancel(c.Request.Context())
		if err := h.takes.Create(ctx, take); err != nil {
			h.log.Error("persist take failed", zap.String("session_id", res.SessionID), zap.Error(err))
			take = nil
		} else if h.queue != nil {
			if err := archive.EnqueueTake(ctx, h.queue, h.takes, take); err != nil {
				h.log.Error("enqueue archive failed", zap.String("take_id", take.ID.String()), zap.Error(err))
			}
		}
	}

	response.OK(c, gin.H{
		"session_id":  res.SessionID,
		"duration_ms": res.DurationMS,
		"files":       res.Files,
		"take":        take,
	})
}

// ListPreviews returns per-input preview connection state.
func (h *Handler) ListPreviews(c *gin.Context) {
	response.OK(c, gin.H{"previews": h.previews.States()})
}

// GetPreview returns one input's preview state.
func (h *Handler) GetPreview(c *gin.Context) {
	st, ok := h.previews.State(c.Param("id"))
	if !ok {
		response.NotFound(c, "no preview open for input")
		return
	}
	response.OK(c, st)
}

// OpenPreview starts (or restarts) the preview for an input.
func (h *Handler) OpenPreview(c *gin.Context) {
	h.previews.Open(c.Param("id"))
	response.OK(c, gin.H{"input_id": c.Param("id")})
}

// ClosePreview tears down the preview for an input.
func (h *Handler) ClosePreview(c *gin.Context) {
	h.previews.Close(c.Param("id"))
	response.OK(c, gin.H{"input_id": c.Param("id")})
}

// RetryPreview re-invokes the last failed open for an input.
func (h *Handler) RetryPreview(c *gin.Context) {
	h.previews.Retry(c.Param("id"))
	response.OK(c, gin.H{"input_id": c.Param("id")})
}

type swapRequest struct {
	NewInputID string `json:"new_input_id" binding:"required"`
}

// SwapPreview moves a display slot to a different input.
func (h *Handler) SwapPreview(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "new_input_id required")
		return
	}
	h.coord.OnInputChange(c.Param("id"), req.NewInputID)
	response.OK(c, gin.H{"input_id": req.NewInputID})
}

// ListTakes returns recent takes from history.
func (h *Handler) ListTakes(c *gin.Context) {
	if h.takes == nil {
		response.OK(c, gin.H{"takes": []models.Take{}})
		return
	}
	takes, err := h.takes.List(c.Request.Context(), 50)
	if err != nil {
		response.Internal(c, "list takes failed")
		return
	}
	response.OK(c, gin.H{"takes": takes})
}

// GetTake returns one take by id.
func (h *Handler) GetTake(c *gin.Context) {
	if h.takes == nil {
		response.NotFound(c, "take history disabled")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid take id")
		return
	}
	take, err := h.takes.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "take not found")
		return
	}
	response.OK(c, take)
}
