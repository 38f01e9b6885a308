package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/physio-appointments/internal/payment"
)

func chargeHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		var req ChargeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		appointmentID, ok := bodyUUID(w, req.AppointmentID, "appointment_id")
		if !ok {
			return
		}

		p, err := svc.Charge(r.Context(), actor.ID, payment.ChargeInput{
			AppointmentID: appointmentID,
			Amount:        req.Amount,
			Method:        req.Method,
			CashTendered:  req.CashTendered,
			CashChange:    req.CashChange,
			Note:          req.Note,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentResponse(p))
	}
}

func confirmPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req ConfirmPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Confirm(r.Context(), actor.ID, id, payment.ConfirmInput{
			MaskedCardNumber: req.CardNumber,
			CardHolder:       req.CardHolder,
			AuthorizationRef: req.AuthorizationRef,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func getPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.GetForTherapist(r.Context(), actor.ID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func getAppointmentPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.GetByAppointmentForTherapist(r.Context(), actor.ID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

// listPatientPaymentsHandler lists every payment, or only pending card
// charges with ?pending=true.
func listPatientPaymentsHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		pendingOnly := false
		if raw := r.URL.Query().Get("pending"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_pending", "pending must be a boolean")
				return
			}
			pendingOnly = v
		}

		var (
			list []payment.Payment
			err  error
		)
		if pendingOnly {
			list, err = svc.ListPendingForPatient(r.Context(), actor.ID)
		} else {
			list, err = svc.ListForPatient(r.Context(), actor.ID)
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentList(list))
	}
}
