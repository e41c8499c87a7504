package incidents

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"hyperlocal/internal/domain"
	"hyperlocal/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	msgNotFound    = "Incident not found"
	msgDeactivated = "Incident marked as inactive"

	defaultRadiusKm = 10.0
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Incidents interface {
	Report(ctx context.Context, req domain.ReportIncidentRequest) (*domain.Incident, error)
	Confirm(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	Resolve(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, req domain.QueryIncidentsRequest) ([]domain.Incident, error)
}

type Handler struct {
	logger    *slog.Logger
	Incidents Incidents
}

func NewHandler(logger *slog.Logger, incidents Incidents) *Handler {
	return &Handler{
		logger:    logger,
		Incidents: incidents,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

// List serves GET /api/incidents?lat=&lon=&radius=. radius is in kilometers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	l.Debug("IncidentList", slog.String("query", r.URL.RawQuery))

	req, err := parseQuery(r)
	if err != nil {
		l.Warn("invalid query", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.Incidents.Query(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Incident{}
	}

	h.writeJSON(w, http.StatusOK, domain.ListIncidentsResponse{
		Success:   true,
		Count:     len(list),
		Incidents: list,
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	var req domain.ReportIncidentRequest
	if err := middleware.BindJSON(w, r, &req); err != nil {
		l.Warn("invalid JSON", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	inc, err := h.Incidents.Report(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("incident created", slog.String("id", inc.ID.String()))
	h.writeJSON(w, http.StatusCreated, domain.IncidentResponse{Success: true, Incident: inc})
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	inc, err := h.Incidents.Confirm(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, domain.IncidentResponse{Success: true, Incident: inc})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.Incidents.Resolve(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.log(r).Info("incident resolved", slog.String("id", id.String()))
	h.writeJSON(w, http.StatusOK, domain.MessageResponse{Success: true, Message: msgDeactivated})
}

// parseID answers 404 for ids that cannot name any incident.
func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.log(r).Debug("malformed id", slog.String("id", raw))
		h.writeError(w, http.StatusNotFound, msgNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// parseQuery applies a center only when both lat and lon are present.
func parseQuery(r *http.Request) (domain.QueryIncidentsRequest, error) {
	q := r.URL.Query()
	latRaw := strings.TrimSpace(q.Get("lat"))
	lonRaw := strings.TrimSpace(q.Get("lon"))

	var req domain.QueryIncidentsRequest
	if latRaw == "" || lonRaw == "" {
		return req, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return req, errInvalidParam("lat")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return req, errInvalidParam("lon")
	}

	radiusKm := defaultRadiusKm
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil || radiusKm <= 0 {
			return req, errInvalidParam("radius")
		}
	}

	req.Center = &domain.Point{Lat: lat, Lng: lon}
	req.RadiusMeters = radiusKm * 1000
	return req, nil
}
