package api

import (
	"net/http"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

func createCenterHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCenterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		c, err := reg.CreateCenter(r.Context(), req.Name, req.TotalCapacity)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toCenterResponse(c))
	}
}

func createTemplateHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req CreateTemplateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		ts, err := reg.CreateTemplate(r.Context(), scheduling.TemplateInput{
			CenterID:          centerID,
			DoctorID:          req.DoctorID,
			Weekday:           req.Weekday,
			StartTime:         *req.StartTime,
			EndTime:           *req.EndTime,
			DefaultCapacity:   req.DefaultCapacity,
			RecurrencePattern: scheduling.RecurrencePattern(req.RecurrencePattern),
		})
		if err != nil {
			handleError(w, err)
			return
		}

		resp := make([]TemplateResponse, 0, len(ts))
		for _, t := range ts {
			resp = append(resp, toTemplateResponse(t))
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func listTemplatesHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"

		ts, err := reg.ListTemplates(r.Context(), centerID, activeOnly)
		if err != nil {
			handleError(w, err)
			return
		}

		resp := make([]TemplateResponse, 0, len(ts))
		for _, t := range ts {
			resp = append(resp, toTemplateResponse(t))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func setTemplateStatusHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		t, err := reg.SetTemplateStatus(r.Context(), id, scheduling.TemplateStatus(req.Status))
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTemplateResponse(*t))
	}
}

func registerBedHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req CreateBedRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		b, err := reg.RegisterBed(r.Context(), centerID, req.Code)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBedResponse(*b))
	}
}

func listBedsHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		centerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		beds, err := reg.ListBeds(r.Context(), centerID)
		if err != nil {
			handleError(w, err)
			return
		}

		resp := make([]BedResponse, 0, len(beds))
		for _, b := range beds {
			resp = append(resp, toBedResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func setBedStatusHandler(reg *scheduling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		b, err := reg.SetBedStatus(r.Context(), id, scheduling.BedStatus(req.Status))
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBedResponse(*b))
	}
}
