package incidents

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"
)

type paramError struct{ name string }

func (p paramError) Error() string { return fmt.Sprintf("invalid %s parameter", p.name) }

func errInvalidParam(name string) error { return paramError{name: name} }

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	l := h.log(r)

	switch {
	case errors.Is(err, e.ErrInvalidInput):
		l.Warn("rejected request", slog.String("path", r.URL.Path), slog.Any("error", err))
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, e.ErrNotFound):
		h.writeError(w, http.StatusNotFound, msgNotFound)
	default:
		l.Error("handler error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, domain.ErrorResponse{Success: false, Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
