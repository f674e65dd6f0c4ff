package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

func generateSessionsHandler(gen *scheduling.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateSessionsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		start, err := scheduling.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", err.Error())
			return
		}
		end, err := scheduling.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", err.Error())
			return
		}

		res, err := gen.Generate(r.Context(), scheduling.GenerateRequest{
			CenterID:    req.CenterID,
			StartDate:   start,
			EndDate:     end,
			TemplateIDs: req.TemplateIDs,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		resp := GenerateSessionsResponse{
			Created:   res.Created,
			Skipped:   res.Skipped,
			Refreshed: res.Refreshed,
			Sessions:  toSessionResponses(res.Sessions),
		}
		for _, f := range res.Failures {
			resp.Failures = append(resp.Failures, TemplateFailureResponse{TemplateID: f.TemplateID, Reason: f.Reason})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := engine.Book(r.Context(), req.ScheduledSessionID, req.PatientID)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancelAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if _, err := engine.Cancel(r.Context(), req.AppointmentID); err != nil {
			handleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func rescheduleAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := engine.Reschedule(r.Context(), req.AppointmentID, req.NewScheduledSessionID)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appt, err := engine.GetAppointment(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appt, err := engine.Complete(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func assignBedHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req AssignBedRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := engine.AssignBed(r.Context(), id, req.BedID)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := engine.ListPatientAppointments(r.Context(), patientID, limit, offset)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}
