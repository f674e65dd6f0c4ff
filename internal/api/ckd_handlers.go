package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/ckd"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

func recordCKDHandler(svc *ckd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordCKDRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in := ckd.RecordInput{
			PatientID:  req.PatientID,
			EGFR:       req.EGFR,
			Creatinine: req.Creatinine,
			Notes:      req.Notes,
		}
		if req.Date != nil {
			d, err := scheduling.ParseDate(*req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
			in.Date = &d
		}

		rec, err := svc.RecordStage(r.Context(), in)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toCKDRecordResponse(*rec))
	}
}

func ckdHistoryHandler(svc *ckd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := strconv.ParseInt(r.URL.Query().Get("patientId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be an integer")
			return
		}

		recs, err := svc.History(r.Context(), patientID)
		if err != nil {
			handleError(w, err)
			return
		}

		resp := make([]CKDRecordResponse, 0, len(recs))
		for _, rec := range recs {
			resp = append(resp, toCKDRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
