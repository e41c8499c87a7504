package domain

type IncidentStats struct {
	ActiveIncidents int64                  `json:"active_incidents"`
	ByType          map[IncidentType]int64 `json:"by_type"`
	OnlineSessions  int                    `json:"online_sessions"`
}
