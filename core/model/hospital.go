package model

import "time"

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether both components are zero, which the flight
// controller uses to signal "no position".
func (c Coordinate) IsZero() bool { return c.Lat == 0 && c.Lon == 0 }

// Hospital is both a blood source and a delivery destination.
type Hospital struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinate returns the hospital position.
func (h Hospital) Coordinate() Coordinate {
	return Coordinate{Lat: h.Latitude, Lon: h.Longitude}
}

// InventoryRecord is the stock of one blood type held by a hospital.
type InventoryRecord struct {
	HospitalID  int64     `json:"hospital_id"`
	BloodType   string    `json:"blood_type"`
	Units       int       `json:"units"`
	LastUpdated time.Time `json:"last_updated"`
}

// Covers reports whether the record can serve the request.
func (i InventoryRecord) Covers(r DeliveryRequest) bool {
	return i.BloodType == r.BloodType && i.Units >= r.Units
}

// NoFlyZone is a named circular exclusion area.
type NoFlyZone struct {
	Name     string  `json:"name" yaml:"name"`
	Lat      float64 `json:"lat" yaml:"lat"`
	Lon      float64 `json:"lon" yaml:"lon"`
	RadiusKm float64 `json:"radius" yaml:"radius"`
}

// Center returns the zone center.
func (z NoFlyZone) Center() Coordinate { return Coordinate{Lat: z.Lat, Lon: z.Lon} }
