package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/tera/internal/apperr"
	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/guard"
	"github.com/starford/tera/internal/imagedata"
	"github.com/starford/tera/internal/mapdoc"
	"github.com/starford/tera/internal/mapservice"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Field string `json:"field,omitempty"`
	Term  string `json:"term,omitempty"`
	Lang  string `json:"lang,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeResult sends the document state with its revision as ETag.
func writeResult(w http.ResponseWriter, status int, res mapservice.Result) {
	w.Header().Set("ETag", checksum.ETag(res.Revision))
	writeJSON(w, status, res)
}

// writeServiceError maps domain errors to HTTP statuses. Anything
// unclassified is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var (
		ffe *guard.ForbiddenFieldError
		sve *guard.SystemVoiceError
		mie *mapdoc.MalformedImportError
		se  *mapdoc.SectorError
	)
	switch {
	case errors.As(err, &ffe):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: ffe.Error(), Field: ffe.Field})
	case errors.As(err, &sve):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: sve.Error(), Term: sve.Term, Lang: sve.Lang})
	case errors.As(err, &mie):
		writeJSON(w, http.StatusBadRequest, errorBody(mie.Error()))
	case errors.As(err, &se):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(se.Error()))
	case errors.Is(err, imagedata.ErrInvalid),
		errors.Is(err, mapdoc.ErrInvalidMode),
		errors.Is(err, mapdoc.ErrInvalidNode):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, mapdoc.ErrDuplicateID):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("revision mismatch"))
	case errors.Is(err, mapdoc.ErrNodeNotFound), errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, mapservice.ErrNotOpen):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("map not loaded"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
