package domain

import (
	"time"

	"github.com/google/uuid"
)

type IncidentType string

const (
	IncidentTrafficJam   IncidentType = "traffic_jam"
	IncidentRoadClosure  IncidentType = "road_closure"
	IncidentWaterlogging IncidentType = "waterlogging"
	IncidentPowerOutage  IncidentType = "power_outage"
	IncidentAccident     IncidentType = "accident"
	IncidentConstruction IncidentType = "construction"
	IncidentOther        IncidentType = "other"
)

var IncidentTypes = []IncidentType{
	IncidentTrafficJam,
	IncidentRoadClosure,
	IncidentWaterlogging,
	IncidentPowerOutage,
	IncidentAccident,
	IncidentConstruction,
	IncidentOther,
}

func (t IncidentType) Valid() bool {
	for _, known := range IncidentTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	UnknownAddress       = "Unknown location"
	MaxDescriptionLength = 500
	DefaultIncidentTTL   = 24 * time.Hour
	DefaultRadiusMeters  = 10000.0
	MaxQueryResults      = 100
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

func (p GeoPoint) Valid() bool {
	return p.Lat() >= -90 && p.Lat() <= 90 && p.Lng() >= -180 && p.Lng() <= 180
}

type Weather struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    float64 `json:"humidity"`
}

type Incident struct {
	ID            uuid.UUID    `json:"id"`
	Location      GeoPoint     `json:"location"`
	IncidentType  IncidentType `json:"incidentType"`
	Description   string       `json:"description"`
	Address       string       `json:"address"`
	Weather       *Weather     `json:"weather,omitempty"`
	Confirmations int64        `json:"confirmations"`
	Timestamp     time.Time    `json:"timestamp"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	IsActive      bool         `json:"isActive"`
}

// ExpiresAt is the hard-delete deadline for the record.
func (i Incident) ExpiresAt(ttl time.Duration) time.Time {
	return i.Timestamp.Add(ttl)
}
