package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"
)

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	l := h.log(r)

	l.Error("handler error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)

	switch {
	case errors.Is(err, e.ErrDeadline), errors.Is(err, e.ErrUnavailable):
		h.writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{Error: "storage unavailable"})
	default:
		h.writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{Error: err.Error()})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
