// Package geo holds the spherical helpers shared by the in-memory index and
// the sync agent.
package geo

import "math"

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	if a > 1 {
		a = 1
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Box is a lat/lng bounding box. When MinLng > MaxLng the box wraps the
// antimeridian.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// FullLng reports whether the box covers every longitude.
func (b Box) FullLng() bool {
	return b.MinLng == -180 && b.MaxLng == 180
}

func (b Box) ContainsLng(lng float64) bool {
	if b.MinLng <= b.MaxLng {
		return lng >= b.MinLng && lng <= b.MaxLng
	}
	return lng >= b.MinLng || lng <= b.MaxLng
}

// BoundingBox returns a box that contains every point within radiusMeters of
// (lat, lng). It is conservative: callers still filter by DistanceMeters.
func BoundingBox(lat, lng, radiusMeters float64) Box {
	dLat := rad2deg(radiusMeters / EarthRadiusMeters)

	b := Box{MinLat: lat - dLat, MaxLat: lat + dLat}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.MinLng, b.MaxLng = -180, 180
		return b
	}

	maxAbsLat := math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))
	dLng := dLat / math.Cos(deg2rad(maxAbsLat))
	if dLng >= 180 {
		b.MinLng, b.MaxLng = -180, 180
		return b
	}

	b.MinLng = lng - dLng
	b.MaxLng = lng + dLng
	if b.MinLng < -180 {
		b.MinLng += 360
	}
	if b.MaxLng > 180 {
		b.MaxLng -= 360
	}
	return b
}

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func rad2deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
