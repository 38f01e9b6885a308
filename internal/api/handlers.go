package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/physio-appointments/internal/appointment"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := bodyUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), actor.ID, appointment.CreateInput{
			PatientID:   patientID,
			Date:        req.Date,
			Time:        req.Time,
			Description: req.Description,
			Type:        req.Type,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := bodyUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), actor.ID, id, appointment.RescheduleInput{
			PatientID:   patientID,
			Date:        req.Date,
			Time:        req.Time,
			Description: req.Description,
			Type:        req.Type,
			Status:      req.Status,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

type statusChanger func(svc AppointmentService, r *http.Request, actorID, id uuid.UUID, raw string) (*appointment.Appointment, error)

func statusHandler(svc AppointmentService, change statusChanger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := change(svc, r, actor.ID, id, req.Status)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func changeStatusHandler(svc AppointmentService) http.HandlerFunc {
	return statusHandler(svc, func(svc AppointmentService, r *http.Request, actorID, id uuid.UUID, raw string) (*appointment.Appointment, error) {
		return svc.ChangeStatus(r.Context(), actorID, id, raw)
	})
}

func changeTherapistStatusHandler(svc AppointmentService) http.HandlerFunc {
	return statusHandler(svc, func(svc AppointmentService, r *http.Request, actorID, id uuid.UUID, raw string) (*appointment.Appointment, error) {
		return svc.ChangeTherapistStatus(r.Context(), actorID, id, raw)
	})
}

func changePatientStatusHandler(svc AppointmentService) http.HandlerFunc {
	return statusHandler(svc, func(svc AppointmentService, r *http.Request, actorID, id uuid.UUID, raw string) (*appointment.Appointment, error) {
		return svc.ChangePatientStatus(r.Context(), actorID, id, raw)
	})
}

func deleteAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		deleted, err := svc.DeleteAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "not_found", appointment.ErrAppointmentNotFound.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// getAppointmentHandler serves the hydrated appointment to its therapist,
// its patient, or an admin.
func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointmentDetail(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if actor.Role != RoleAdmin && !detail.Involves(actor.ID) {
			handleServiceError(w, r, appointment.ErrAppointmentNotFound)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentDetailResponse{
			AppointmentResponse: toAppointmentResponse(&detail.Appointment),
			Therapist:           toProfileResponse(detail.Therapist),
			Patient:             toProfileResponse(detail.Patient),
		})
	}
}

// listTherapistAppointmentsHandler accepts ?date= for one day or ?from=&to=
// for an inclusive range.
func listTherapistAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		q := r.URL.Query()

		var (
			list []appointment.Appointment
			err  error
		)
		switch {
		case q.Get("date") != "":
			list, err = svc.ListTherapistDay(r.Context(), actor.ID, q.Get("date"))
		case q.Get("from") != "" && q.Get("to") != "":
			list, err = svc.ListTherapistRange(r.Context(), actor.ID, q.Get("from"), q.Get("to"))
		default:
			writeError(w, http.StatusBadRequest, "missing_date", "provide date or from and to")
			return
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func listPatientAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())

		list, err := svc.ListPatientAppointments(r.Context(), actor.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func searchPatientsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.SearchPatients(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		out := make([]PatientEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, PatientEntryResponse{ID: e.ID, Name: e.Name, Email: e.Email})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
