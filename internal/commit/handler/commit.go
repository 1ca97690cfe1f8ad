package handler

import (
	"encoding/json"
	"net/http"

	"lanedesk/internal/commit/service"
	httputil "lanedesk/pkg/http"
	"lanedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type CommitHandler struct {
	service service.CommitService
	log     *logger.Logger
}

func NewCommitHandler(service service.CommitService, log *logger.Logger) *CommitHandler {
	return &CommitHandler{
		service: service,
		log:     log,
	}
}

func (h *CommitHandler) SignAgreement(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.SignAgreementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "SignAgreement", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	result, err := h.service.SignAgreement(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SignAgreement", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "SignAgreement", "operation", "WriteCreated", "error", err)
	}
}

func (h *CommitHandler) OverrideSignature(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.OverrideSignatureInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "OverrideSignature", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	result, err := h.service.OverrideSignature(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "OverrideSignature", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "OverrideSignature", "operation", "WriteCreated", "error", err)
	}
}

func (h *CommitHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/lanes/:laneId/agreement/sign", h.SignAgreement)
	router.POST("/api/v1/lanes/:laneId/agreement/override", h.OverrideSignature)
}
