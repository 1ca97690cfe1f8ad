package handler

import (
	"encoding/json"
	"net/http"

	"lanedesk/internal/lanesession/service"
	httputil "lanedesk/pkg/http"
	"lanedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type LaneSessionHandler struct {
	service service.LaneSessionService
	log     *logger.Logger
}

func NewLaneSessionHandler(service service.LaneSessionService, log *logger.Logger) *LaneSessionHandler {
	return &LaneSessionHandler{
		service: service,
		log:     log,
	}
}

func (h *LaneSessionHandler) StartSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.StartSessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "StartSession", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	session, err := h.service.StartSession(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "StartSession", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, session); err != nil {
		h.log.Error("failed to write created response", "handler", "StartSession", "operation", "WriteCreated", "error", err)
	}
}

func (h *LaneSessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	session, err := h.service.GetCurrent(r.Context(), laneID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetCurrent", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "GetCurrent", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LaneSessionHandler) ProposeSelection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.ProposeSelectionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "ProposeSelection", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	session, err := h.service.ProposeSelection(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ProposeSelection", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "ProposeSelection", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LaneSessionHandler) ConfirmSelection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.ConfirmSelectionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "ConfirmSelection", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	session, err := h.service.ConfirmSelection(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ConfirmSelection", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "ConfirmSelection", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LaneSessionHandler) AcknowledgeSelection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "AcknowledgeSelection", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.AcknowledgeSelection(r.Context(), laneID, input.AcknowledgedBy); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AcknowledgeSelection", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LaneSessionHandler) KioskAck(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	session, err := h.service.KioskAck(r.Context(), laneID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "KioskAck", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "KioskAck", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LaneSessionHandler) UpdateCustomerProfile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.UpdateProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "UpdateCustomerProfile", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.UpdateCustomerProfile(r.Context(), laneID, &input); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateCustomerProfile", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LaneSessionHandler) Reset(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input struct {
		OperatorID string `json:"operator_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
				Error: "Invalid request body",
			}); writeErr != nil {
				h.log.Error("failed to write JSON response", "handler", "Reset", "operation", "WriteJSON", "error", writeErr)
			}
			return
		}
	}

	if err := h.service.Reset(r.Context(), laneID, input.OperatorID); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reset", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LaneSessionHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/lanes/:laneId/session", h.StartSession)
	router.GET("/api/v1/lanes/:laneId/session", h.GetCurrent)
	router.POST("/api/v1/lanes/:laneId/selection/propose", h.ProposeSelection)
	router.POST("/api/v1/lanes/:laneId/selection/confirm", h.ConfirmSelection)
	router.POST("/api/v1/lanes/:laneId/selection/acknowledge", h.AcknowledgeSelection)
	router.POST("/api/v1/lanes/:laneId/customer/profile", h.UpdateCustomerProfile)
	router.POST("/api/v1/lanes/:laneId/kiosk-ack", h.KioskAck)
	router.POST("/api/v1/lanes/:laneId/reset", h.Reset)
}
