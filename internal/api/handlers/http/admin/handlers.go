package admin

import (
	"context"
	"log/slog"
	"net/http"

	"hyperlocal/internal/domain"

	chimw "github.com/go-chi/chi/v5/middleware"
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type StatsGetter interface {
	GetStats(ctx context.Context) (*domain.IncidentStats, error)
}

type StatsResponse struct {
	Success bool                  `json:"success"`
	Stats   *domain.IncidentStats `json:"stats"`
}

type Handler struct {
	logger *slog.Logger
	Stats  StatsGetter
}

func NewHandler(logger *slog.Logger, stats StatsGetter) *Handler {
	return &Handler{
		logger: logger,
		Stats:  stats,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("AdminStats", slog.String("remote", r.RemoteAddr))

	stats, err := h.Stats.GetStats(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("stats served",
		slog.Int64("active", stats.ActiveIncidents),
		slog.Int("sessions", stats.OnlineSessions),
	)
	h.writeJSON(w, http.StatusOK, StatsResponse{Success: true, Stats: stats})
}
