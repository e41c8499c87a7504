package domain

type ReportIncidentRequest struct {
	Latitude     *float64     `json:"latitude" validate:"required,lat"`
	Longitude    *float64     `json:"longitude" validate:"required,lng"`
	IncidentType IncidentType `json:"incidentType" validate:"required,incident_type"`
	Description  string       `json:"description" validate:"required,max=500"`
}

// Point is a query center in degrees.
type Point struct {
	Lat float64 `validate:"lat"`
	Lng float64 `validate:"lng"`
}

type QueryIncidentsRequest struct {
	Center       *Point
	RadiusMeters float64 `validate:"omitempty,gt=0"`
}

type NearbyQuery struct {
	Lat          float64
	Lng          float64
	RadiusMeters float64
	Limit        int
}

type ListIncidentsResponse struct {
	Success   bool       `json:"success"`
	Count     int        `json:"count"`
	Incidents []Incident `json:"incidents"`
}

type IncidentResponse struct {
	Success  bool      `json:"success"`
	Incident *Incident `json:"incident"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
