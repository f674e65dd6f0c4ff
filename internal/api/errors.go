package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/ckd"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the specific not-found variants wrap scheduling.ErrNotFound.
var errorMappings = []errorMapping{
	{actor.ErrMissingActor, http.StatusUnauthorized, "missing_actor"},

	{scheduling.ErrCenterNotFound, http.StatusNotFound, "center_not_found"},
	{scheduling.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{scheduling.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{scheduling.ErrBedNotFound, http.StatusNotFound, "bed_not_found"},
	{scheduling.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{scheduling.ErrNotFound, http.StatusNotFound, "not_found"},

	{scheduling.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
	{scheduling.ErrInvalidTemplate, http.StatusBadRequest, "invalid_template"},
	{scheduling.ErrInvalidSession, http.StatusBadRequest, "invalid_session"},
	{scheduling.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ckd.ErrInvalidMeasurement, http.StatusBadRequest, "invalid_measurement"},
	{ckd.ErrInvalidDate, http.StatusBadRequest, "invalid_date"},
	{ckd.ErrInvalidPatient, http.StatusBadRequest, "invalid_patient"},

	{scheduling.ErrExhausted, http.StatusConflict, "exhausted"},
	{scheduling.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{scheduling.ErrSessionNotBookable, http.StatusConflict, "session_not_bookable"},
	{scheduling.ErrAlreadyTerminal, http.StatusConflict, "already_terminal"},
	{scheduling.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{scheduling.ErrDuplicateBedCode, http.StatusConflict, "duplicate_bed_code"},
	{scheduling.ErrBedUnavailable, http.StatusConflict, "bed_unavailable"},
	{scheduling.ErrSessionBusy, http.StatusConflict, "session_busy"},
	{scheduling.ErrGenerationInProgress, http.StatusConflict, "generation_in_progress"},
}

// handleError writes the error response for err. Unmapped errors become a
// 500 without details; the logging middleware records the cause.
func handleError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	if rw, ok := w.(*responseWriter); ok {
		rw.err = err
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
