// Package geo provides great-circle distance helpers used for range and
// proximity checks.
package geo

import (
	"math"

	"github.com/kilianp07/bloodlift/core/model"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(a, b model.Coordinate) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// DistanceMeters is DistanceKm scaled to metres.
func DistanceMeters(a, b model.Coordinate) float64 {
	return DistanceKm(a, b) * 1000
}

// Within reports whether p lies strictly inside the circle of radiusKm around center.
func Within(p, center model.Coordinate, radiusKm float64) bool {
	return DistanceKm(p, center) < radiusKm
}

// Offset returns the coordinate reached by moving northKm and eastKm from
// origin. It is accurate for the short distances used in tests and the
// simulator.
func Offset(origin model.Coordinate, northKm, eastKm float64) model.Coordinate {
	const degToRad = math.Pi / 180
	dLat := northKm / EarthRadiusKm / degToRad
	dLon := eastKm / (EarthRadiusKm * math.Cos(origin.Lat*degToRad)) / degToRad
	return model.Coordinate{Lat: origin.Lat + dLat, Lon: origin.Lon + dLon}
}
