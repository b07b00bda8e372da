package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campus-events/internal/apperr"
	"campus-events/internal/auth"
	"campus-events/internal/logger"
	"campus-events/internal/models"
	"campus-events/internal/payment"
	"campus-events/internal/utils"
)

type Handler struct {
	Service *payment.Service
	Logger  *logger.Logger
}

func NewHandler(service *payment.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/tickets/{ticketID}/receipt", h.UploadReceipt)
	r.Post("/verifications/{verificationID}/decision", h.VerifyPayment)
	r.Post("/tickets/scan", h.Scan)
}

func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	actor := auth.ActorFromContext(r.Context())

	var requestBody struct {
		ReceiptImageURL string `json:"receipt_image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	v, err := h.Service.UploadReceipt(r.Context(), ticketID, requestBody.ReceiptImageURL, actor)
	if err != nil {
		h.Logger.LogPayment("RECEIPT", ticketID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogPayment("RECEIPT", ticketID, "receipt uploaded, verification pending")
	utils.WriteSuccess(w, http.StatusAccepted, "receipt uploaded", v)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	verificationID := chi.URLParam(r, "verificationID")
	actor := auth.ActorFromContext(r.Context())

	var requestBody struct {
		Decision models.VerificationStatus `json:"decision"`
		Notes    string                    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	ticket, err := h.Service.VerifyPayment(r.Context(), verificationID, actor, requestBody.Decision, requestBody.Notes)
	if err != nil {
		h.Logger.LogPayment("DECISION", verificationID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogPayment("DECISION", verificationID,
		fmt.Sprintf("ticket %s decided %s by %s", ticket.ID, requestBody.Decision, actor.ID))
	utils.WriteSuccess(w, http.StatusOK, "payment verification recorded", ticket)
}

// Scan checks a paid ticket holder in from a scanned ticket QR payload.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if requestBody.Payload == "" {
		utils.WriteError(w, apperr.Validation("payload is required"))
		return
	}

	actor := auth.ActorFromRequest(r)
	ticket, err := h.Service.CheckInByQR(r.Context(), requestBody.Payload, actor)
	if err != nil {
		h.Logger.LogCheckin("TICKET-SCAN", actor.ID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogCheckin("TICKET-SCAN", ticket.ID, "ticket holder checked in via QR")
	utils.WriteSuccess(w, http.StatusOK, "checked in", ticket)
}
