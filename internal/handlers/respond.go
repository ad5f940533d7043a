package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"converse-backend/internal/apperr"

	"github.com/go-chi/chi/v5"
)

const maxBodySize = 64 * 1024

func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.sugar.Debug(err)
	}
}

// Error writes {"error": msg} with the status of err's kind. Unexpected
// errors are logged and their cause is not shown to the caller.
func (h *Handler) Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Unexpected {
		h.sugar.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		h.sugar.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	h.JSON(w, apperr.HTTPStatus(kind), map[string]string{"error": apperr.PublicMessage(err)})
}

func (h *Handler) decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if errors.Is(err, io.EOF) {
		return apperr.New(apperr.Validation, "Request body is empty")
	} else if err != nil {
		return apperr.Wrap(apperr.Validation, "Request body is not valid JSON", err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "Invalid "+name)
	}
	return id, nil
}

// intQuery returns fallback when the parameter is missing or not a number.
func intQuery(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}
