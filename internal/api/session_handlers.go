package api

import (
	"net/http"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

func createSessionHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		date, err := scheduling.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		s, err := engine.CreateSession(r.Context(), scheduling.SessionInput{
			CenterID:      req.CenterID,
			Date:          date,
			StartTime:     *req.StartTime,
			EndTime:       *req.EndTime,
			AvailableBeds: *req.AvailableBeds,
			Notes:         req.Notes,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSessionResponse(*s))
	}
}

func getSessionHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		s, err := engine.GetSession(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(*s))
	}
}

func listCenterSessionsHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		from, err := scheduling.ParseDate(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		to, err := scheduling.ParseDate(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}

		sessions, err := engine.ListSessions(r.Context(), centerID, from, to)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponses(sessions))
	}
}

func updateSessionStatusHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		s, err := engine.UpdateSessionStatus(r.Context(), id, scheduling.SessionStatus(req.Status))
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(*s))
	}
}

func cancelSessionHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		res, err := engine.CancelSession(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelSessionResponse{
			Session:              toSessionResponse(*res.Session),
			CanceledAppointments: len(res.Canceled),
		})
	}
}

func listSessionAppointmentsHandler(engine *scheduling.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appts, err := engine.ListSessionAppointments(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}
