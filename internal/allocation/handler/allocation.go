package handler

import (
	"encoding/json"
	"net/http"

	"lanedesk/internal/allocation/service"
	httputil "lanedesk/pkg/http"
	"lanedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type AllocationHandler struct {
	allocator service.AllocatorService
	estimator service.WaitlistEstimator
	log       *logger.Logger
}

func NewAllocationHandler(allocator service.AllocatorService, estimator service.WaitlistEstimator, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		allocator: allocator,
		estimator: estimator,
		log:       log,
	}
}

func (h *AllocationHandler) AssignResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.AssignResourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "AssignResource", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	result, err := h.allocator.AssignResource(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AssignResource", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "AssignResource", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AllocationHandler) ConfirmResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.ConfirmResourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "ConfirmResource", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	session, err := h.allocator.ConfirmResource(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ConfirmResource", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "ConfirmResource", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AllocationHandler) GetWaitlistInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tier := r.URL.Query().Get("tier")
	if tier == "" {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "The 'tier' query parameter is required",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "GetWaitlistInfo", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	info, err := h.estimator.ComputeWaitlistInfo(r.Context(), tier)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetWaitlistInfo", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, info); err != nil {
		h.log.Error("failed to write success response", "handler", "GetWaitlistInfo", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AllocationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/lanes/:laneId/resource", h.AssignResource)
	router.POST("/api/v1/lanes/:laneId/resource/confirm", h.ConfirmResource)
	router.GET("/api/v1/waitlist/info", h.GetWaitlistInfo)
}
