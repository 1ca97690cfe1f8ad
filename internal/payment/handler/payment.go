package handler

import (
	"encoding/json"
	"net/http"

	"lanedesk/internal/payment/service"
	httputil "lanedesk/pkg/http"
	"lanedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type PaymentHandler struct {
	service service.PaymentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log,
	}
}

func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	intent, err := h.service.CreateIntent(r.Context(), laneID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateIntent", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, intent); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateIntent", "operation", "WriteCreated", "error", err)
	}
}

func (h *PaymentHandler) CreateSettlementIntent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	intent, err := h.service.CreateSettlementIntent(r.Context(), laneID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateSettlementIntent", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, intent); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateSettlementIntent", "operation", "WriteCreated", "error", err)
	}
}

func (h *PaymentHandler) MarkPaid(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	intentID := ps.ByName("intentId")

	var input service.MarkPaidInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
				Error: "Invalid request body",
			}); writeErr != nil {
				h.log.Error("failed to write JSON response", "handler", "MarkPaid", "operation", "WriteJSON", "error", writeErr)
			}
			return
		}
	}

	result, err := h.service.MarkPaid(r.Context(), intentID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "MarkPaid", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write response", "handler", "MarkPaid", "operation", "WriteOK", "error", err)
	}
}

func (h *PaymentHandler) TakePayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	intentID := ps.ByName("intentId")

	var input service.TakePaymentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "TakePayment", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	result, err := h.service.TakePayment(r.Context(), intentID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "TakePayment", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write response", "handler", "TakePayment", "operation", "WriteOK", "error", err)
	}
}

func (h *PaymentHandler) BypassPastDue(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	laneID := ps.ByName("laneId")

	var input service.BypassPastDueInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "BypassPastDue", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	session, err := h.service.BypassPastDue(r.Context(), laneID, &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "BypassPastDue", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write response", "handler", "BypassPastDue", "operation", "WriteOK", "error", err)
	}
}

func (h *PaymentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/lanes/:laneId/payment/intent", h.CreateIntent)
	router.POST("/api/v1/lanes/:laneId/past-due/settle", h.CreateSettlementIntent)
	router.POST("/api/v1/lanes/:laneId/past-due/bypass", h.BypassPastDue)
	router.POST("/api/v1/payments/:intentId/mark-paid", h.MarkPaid)
	router.POST("/api/v1/payments/:intentId/take-payment", h.TakePayment)
}
