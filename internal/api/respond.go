package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/payment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func bodyUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps lifecycle errors onto HTTP. Anything unrecognised
// is an infrastructure fault and is logged, not echoed.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payment.ErrNotAvailable):
		writeError(w, http.StatusNotFound, "not_available", "")

	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, directory.ErrTherapistNotFound),
		errors.Is(err, directory.ErrPatientNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, appointment.ErrInvalidDate),
		errors.Is(err, appointment.ErrInvalidTime),
		errors.Is(err, appointment.ErrInvalidRange),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidCard):
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())

	case errors.Is(err, appointment.ErrInvalidType),
		errors.Is(err, appointment.ErrInvalidStatus),
		errors.Is(err, payment.ErrInvalidMethod):
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())

	case errors.Is(err, payment.ErrInsufficientCash):
		writeError(w, http.StatusBadRequest, "insufficient_cash", err.Error())

	case errors.Is(err, appointment.ErrTooSoon):
		writeError(w, http.StatusUnprocessableEntity, "too_soon", err.Error())

	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_busy", err.Error())

	case errors.Is(err, payment.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "payment_exists", err.Error())
	case errors.Is(err, payment.ErrChargeBusy):
		writeError(w, http.StatusConflict, "charge_busy", err.Error())

	case errors.Is(err, appointment.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", err.Error())

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
