package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"campus-events/internal/apperr"
	"campus-events/internal/auth"
	"campus-events/internal/logger"
	"campus-events/internal/registration"
	"campus-events/internal/utils"
)

type Handler struct {
	Service *registration.Service
	Logger  *logger.Logger
}

func NewHandler(service *registration.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/events/{eventID}/registrations", h.Register)
	r.Get("/events/{eventID}/participants.csv", h.ExportParticipants)
	r.Delete("/registrations/{registrationID}", h.Cancel)
	r.Post("/registrations/{registrationID}/checkin", h.CheckIn)
	r.Post("/registrations/{registrationID}/undo-checkin", h.UndoCheckIn)
	r.Post("/registrations/{registrationID}/qr", h.RemintQR)
	r.Post("/checkin/scan", h.Scan)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	actor := auth.ActorFromContext(r.Context())
	if actor.ID == "" {
		utils.WriteError(w, apperr.Forbidden("authentication required"))
		return
	}

	resp, err := h.Service.Register(r.Context(), eventID, actor.ID)
	if err != nil {
		h.Logger.LogRegistration("REGISTER", eventID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogRegistration("REGISTER", resp.Registration.ID,
		fmt.Sprintf("user %s admitted as %s", actor.ID, resp.Registration.Status))
	utils.WriteSuccess(w, http.StatusCreated, "registration created", resp)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationID")
	actor := auth.ActorFromContext(r.Context())

	if err := h.Service.Cancel(r.Context(), registrationID, actor); err != nil {
		h.Logger.LogRegistration("CANCEL", registrationID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogRegistration("CANCEL", registrationID, "registration cancelled")
	utils.WriteSuccess(w, http.StatusOK, "registration cancelled", nil)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationID")
	actor := auth.ActorFromContext(r.Context())

	resp, err := h.Service.CheckIn(r.Context(), registrationID, actor)
	if err != nil {
		h.Logger.LogCheckin("CHECKIN", registrationID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogCheckin("CHECKIN", registrationID, "attendee checked in")
	utils.WriteSuccess(w, http.StatusOK, "checked in", resp)
}

func (h *Handler) UndoCheckIn(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationID")
	actor := auth.ActorFromContext(r.Context())

	resp, err := h.Service.UndoCheckIn(r.Context(), registrationID, actor)
	if err != nil {
		h.Logger.LogCheckin("UNDO", registrationID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogCheckin("UNDO", registrationID, "check-in undone")
	utils.WriteSuccess(w, http.StatusOK, "check-in undone", resp)
}

func (h *Handler) RemintQR(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationID")
	actor := auth.ActorFromContext(r.Context())

	reg, err := h.Service.RemintQR(r.Context(), registrationID, actor)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "QR code issued", reg)
}

// Scan checks an attendee in from a scanned registration QR payload.
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
	resp, err := h.Service.CheckInByQR(r.Context(), requestBody.Payload, actor)
	if err != nil {
		h.Logger.LogCheckin("SCAN", actor.ID, err.Error())
		utils.WriteError(w, err)
		return
	}

	h.Logger.LogCheckin("SCAN", resp.Registration.ID, "attendee checked in via QR")
	utils.WriteSuccess(w, http.StatusOK, "checked in", resp)
}

// ExportParticipants streams the event's registrations as CSV. A thin
// projection over the ledger's checked_in bookkeeping.
func (h *Handler) ExportParticipants(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	actor := auth.ActorFromContext(r.Context())

	regs, err := h.Service.Participants(r.Context(), eventID, actor)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "participants-"+eventID+".csv"))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"registration_id", "user_id", "status", "checked_in", "checked_in_at", "registered_at"})
	for _, reg := range regs {
		checkedInAt := ""
		if reg.CheckedInAt != nil {
			checkedInAt = reg.CheckedInAt.Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			reg.ID,
			reg.UserID,
			string(reg.Status),
			strconv.FormatBool(reg.CheckedIn),
			checkedInAt,
			reg.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}
